// SPDX-FileCopyrightText: 2026 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package catalogcache

import (
	"context"
	"sync"

	"k8s.io/utils/clock"

	"github.com/telekom/api-catalog/pkg/discovery"
)

// MemoryCache keeps the encoded snapshot in process memory.
// It survives scheduler restarts within one process but not process restarts.
type MemoryCache struct {
	clock clock.PassiveClock

	mu   sync.RWMutex
	data []byte
}

var _ Store = &MemoryCache{}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{clock: clock.RealClock{}}
}

func (c *MemoryCache) Load(ctx context.Context) (*discovery.Catalog, bool) {
	ctx, span := startSpan(ctx, "Load", BackendMemory, "")
	defer span.End()

	c.mu.RLock()
	data := c.data
	c.mu.RUnlock()

	if data == nil {
		return loadResult(ctx, BackendMemory, nil, nil)
	}
	catalog, err := Decode(data)
	return loadResult(ctx, BackendMemory, catalog, err)
}

func (c *MemoryCache) Save(ctx context.Context, catalog *discovery.Catalog) {
	ctx, span := startSpan(ctx, "Save", BackendMemory, "")
	defer span.End()

	data, err := Encode(catalog, c.clock.Now())
	if err == nil {
		c.mu.Lock()
		c.data = data
		c.mu.Unlock()
	}
	saveResult(ctx, BackendMemory, err)
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
