package statuscache

import (
	"context"
	"sync"

	"docextract/internal/common"
)

// MemoryCache is an in-process Cache for tests and single-node setups.
type MemoryCache struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemory() *MemoryCache {
	return &MemoryCache{recs: make(map[string]Record)}
}

func (c *MemoryCache) CreateIfAbsent(ctx context.Context, rec Record) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.recs[rec.ID]; ok {
		return false, nil
	}
	c.recs[rec.ID] = rec
	return true, nil
}

func (c *MemoryCache) Set(ctx context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs[rec.ID] = rec
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, id string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.recs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	return &rec, nil
}

func (c *MemoryCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.recs, id)
	return nil
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}
