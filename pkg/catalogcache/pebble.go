// SPDX-FileCopyrightText: 2026 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package catalogcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"k8s.io/utils/clock"

	"github.com/telekom/api-catalog/pkg/discovery"
)

// catalogKey is the single key the snapshot is stored under.
var catalogKey = []byte("api-catalog/snapshot")

// PebbleCache stores the snapshot in an embedded Pebble database.
type PebbleCache struct {
	dir   string
	db    *pebble.DB
	clock clock.PassiveClock

	// mu is held for reading by every database access and for writing by Close.
	mu     sync.RWMutex
	closed bool
}

var errPebbleClosed = errors.New("pebble cache is closed")

var _ Store = &PebbleCache{}

// OpenPebbleCache opens or creates the database in dir. A nil fs uses the OS file system.
func OpenPebbleCache(dir string, fs vfs.FS) (*PebbleCache, error) {
	opts := &pebble.Options{
		// the store holds a single small value
		MemTableSize: 4 << 20,
		MaxOpenFiles: 64,
	}
	if fs != nil {
		opts.FS = fs
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database at %s: %w", dir, err)
	}
	return &PebbleCache{dir: dir, db: db, clock: clock.RealClock{}}, nil
}

// Load reads the snapshot.
func (c *PebbleCache) Load(ctx context.Context) (*discovery.Catalog, bool) {
	ctx, span := startSpan(ctx, "Load", BackendPebble, c.dir)
	defer span.End()

	catalog, err := c.load()
	return loadResult(ctx, BackendPebble, catalog, err)
}

func (c *PebbleCache) load() (*discovery.Catalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errPebbleClosed
	}

	value, closer, err := c.db.Get(catalogKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog snapshot: %w", err)
	}
	defer func() { _ = closer.Close() }()

	// value is only valid until closer is closed; Decode copies everything it keeps.
	return Decode(value)
}

// Save replaces the snapshot.
func (c *PebbleCache) Save(ctx context.Context, catalog *discovery.Catalog) {
	ctx, span := startSpan(ctx, "Save", BackendPebble, c.dir)
	defer span.End()

	saveResult(ctx, BackendPebble, c.save(catalog))
}

func (c *PebbleCache) save(catalog *discovery.Catalog) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errPebbleClosed
	}

	data, err := Encode(catalog, c.clock.Now())
	if err != nil {
		return err
	}
	if err := c.db.Set(catalogKey, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write catalog snapshot: %w", err)
	}
	return nil
}

// Clear deletes the snapshot.
func (c *PebbleCache) Clear(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errPebbleClosed
	}
	if err := c.db.Delete(catalogKey, pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete catalog snapshot: %w", err)
	}
	return nil
}

// Close closes the database once every running Load, Save and Clear has returned.
// It is safe to call more than once.
func (c *PebbleCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
