// Package store defines the RunStore interface for caching completed
// simulation runs by parameter-set key.
//
// A run cache holds only recomputable data: losing it costs time, never
// results.
package store

import (
	"context"

	"github.com/nvandessel/rbdc/internal/models"
)

// RunStore caches completed runs keyed by models.ParameterSet.Key.
type RunStore interface {
	// Get returns the cached run for key, or nil if none is cached.
	Get(ctx context.Context, key string) (*models.CachedRun, error)

	// Put caches run under its parameter-set key, replacing any previous entry.
	Put(ctx context.Context, run *models.SimulationRun) error

	// List returns every cached entry, oldest first.
	List(ctx context.Context) ([]models.CachedRun, error)

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
