package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/rbdc/internal/models"
)

// InMemoryRunStore implements RunStore for tests and single-process use.
type InMemoryRunStore struct {
	mu      sync.RWMutex
	entries map[string]models.CachedRun
	now     func() time.Time
}

// NewInMemoryRunStore creates an empty in-memory cache.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		entries: make(map[string]models.CachedRun),
		now:     time.Now,
	}
}

// Get returns the cached run for key. Returns nil if not found.
func (s *InMemoryRunStore) Get(ctx context.Context, key string) (*models.CachedRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put caches run under its parameter-set key.
func (s *InMemoryRunStore) Put(ctx context.Context, run *models.SimulationRun) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	key := run.Params.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = models.CachedRun{Key: key, Run: run, CreatedAt: s.now()}
	return nil
}

// List returns every cached entry, oldest first.
func (s *InMemoryRunStore) List(ctx context.Context) ([]models.CachedRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CachedRun, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Delete removes an entry.
func (s *InMemoryRunStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error {
	return nil
}
