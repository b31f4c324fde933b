package resultstore

import (
	"context"
	"sync"
	"time"

	"docextract/internal/common"
)

// MemoryStore is an in-process Store for tests. It enforces the same
// write-once-per-terminal-outcome guard as the Postgres implementation.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemory() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.recs[rec.ID]
	if ok && existing.Status.Terminal() && existing.Status != rec.Status {
		// a terminal record never changes outcome; drop the write
		return nil
	}
	if ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()
	s.recs[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
