package store

import (
	"context"
	"sync"

	"github.com/aukilabs/escapefield/field"
)

// Loader is the interface that describes a source of baked fields.
type Loader interface {
	Load(ctx context.Context, id string) (field.BakedField, error)
}

// LookupCache lazily builds and keeps the lookups of loaded fields.
//
// Cached lookups are never mutated. Invalidating a field drops its lookup so
// that the next query rebuilds it from the loader. A load that overlaps an
// invalidation is returned to its caller but not cached.
type LookupCache struct {
	loader Loader

	mutex       sync.RWMutex
	lookups     map[string]*field.Lookup
	generations map[string]uint64
}

func NewLookupCache(l Loader) *LookupCache {
	return &LookupCache{
		loader:      l,
		lookups:     make(map[string]*field.Lookup),
		generations: make(map[string]uint64),
	}
}

// Get returns the lookup of the given field, loading it when it is not
// cached yet.
func (c *LookupCache) Get(ctx context.Context, id string) (*field.Lookup, error) {
	c.mutex.RLock()
	l, ok := c.lookups[id]
	generation := c.generations[id]
	c.mutex.RUnlock()
	if ok {
		instrumentCacheAccess(true)
		return l, nil
	}
	instrumentCacheAccess(false)

	f, err := c.loader.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	l = field.NewLookup(f)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Another reader may have loaded it in the meantime.
	if cached, ok := c.lookups[id]; ok {
		return cached, nil
	}
	if c.generations[id] == generation {
		c.lookups[id] = l
	}
	return l, nil
}

func (c *LookupCache) Invalidate(id string) {
	c.mutex.Lock()
	delete(c.lookups, id)
	c.generations[id]++
	c.mutex.Unlock()
}

func (c *LookupCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.lookups)
}
