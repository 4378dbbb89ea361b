// SPDX-FileCopyrightText: 2026 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package catalogcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"k8s.io/utils/clock"

	"github.com/telekom/api-catalog/pkg/discovery"
)

const lockRetryDelay = 50 * time.Millisecond

// FileCache stores the snapshot in a single JSON file.
// Writes go to a temporary file that is renamed into place, and a sibling lock file
// serializes access between processes sharing the path.
type FileCache struct {
	path  string
	lock  *flock.Flock
	clock clock.PassiveClock
}

var _ Store = &FileCache{}

// NewFileCache creates a cache that persists to path.
func NewFileCache(path string) *FileCache {
	return &FileCache{
		path:  path,
		lock:  flock.New(path + ".lock"),
		clock: clock.RealClock{},
	}
}

// Path returns the snapshot file location.
func (c *FileCache) Path() string {
	return c.path
}

// Load reads the snapshot. A missing, locked-out or corrupt file is a miss.
func (c *FileCache) Load(ctx context.Context) (*discovery.Catalog, bool) {
	ctx, span := startSpan(ctx, "Load", BackendFile, c.path)
	defer span.End()

	catalog, err := c.load(ctx)
	return loadResult(ctx, BackendFile, catalog, err)
}

func (c *FileCache) load(ctx context.Context) (*discovery.Catalog, error) {
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	locked, err := c.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("unable to lock %s: %w", c.lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("unable to lock %s", c.lock.Path())
	}
	defer func() { _ = c.lock.Unlock() }()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Save replaces the snapshot. Failures are logged and counted.
func (c *FileCache) Save(ctx context.Context, catalog *discovery.Catalog) {
	ctx, span := startSpan(ctx, "Save", BackendFile, c.path)
	defer span.End()

	saveResult(ctx, BackendFile, c.save(ctx, catalog))
}

func (c *FileCache) save(ctx context.Context, catalog *discovery.Catalog) error {
	data, err := Encode(catalog, c.clock.Now())
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("unable to create cache directory: %w", err)
	}

	locked, err := c.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("unable to lock %s: %w", c.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("unable to lock %s", c.lock.Path())
	}
	defer func() { _ = c.lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create temporary cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to write temporary cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to sync temporary cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close temporary cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("unable to replace cache file: %w", err)
	}
	return nil
}

// Clear removes the snapshot file.
func (c *FileCache) Clear(ctx context.Context) error {
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	locked, err := c.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("unable to lock %s: %w", c.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("unable to lock %s", c.lock.Path())
	}
	defer func() { _ = c.lock.Unlock() }()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to remove cache file: %w", err)
	}
	return nil
}

// Close releases the lock file handle.
func (c *FileCache) Close() error {
	return c.lock.Close()
}
