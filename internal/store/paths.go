package store

import (
	"path/filepath"

	"github.com/nvandessel/rbdc/internal/config"
)

// CacheFile is the cache database name inside the rbdc directory.
const CacheFile = "cache.db"

// DefaultCachePath returns ~/.rbdc/cache.db.
func DefaultCachePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CacheFile), nil
}

// Open returns the cache selected by path: in memory when path is empty,
// SQLite otherwise.
func Open(path string) (RunStore, error) {
	if path == "" {
		return NewInMemoryRunStore(), nil
	}
	s, err := NewSQLiteRunStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Compile-time interface checks.
var (
	_ RunStore = (*InMemoryRunStore)(nil)
	_ RunStore = (*SQLiteRunStore)(nil)
)
