package discovery

import "context"

// Cache persists the last successfully discovered catalog across restarts.
//
// Implementations are best effort. Load reports a missing, unreadable or corrupt
// snapshot as absent and Save swallows write failures; both only log and count them.
type Cache interface {
	// Load returns the persisted catalog, or false if there is none.
	Load(ctx context.Context) (*Catalog, bool)
	// Save persists catalog, replacing any previous snapshot.
	Save(ctx context.Context, catalog *Catalog)
}

// NopCache never holds a catalog.
type NopCache struct{}

var _ Cache = NopCache{}

func (NopCache) Load(context.Context) (*Catalog, bool) { return nil, false }

func (NopCache) Save(context.Context, *Catalog) {}
