package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/rbdc/internal/models"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore using SQLite for persistence, so cached
// runs survive restarts of the query server.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteRunStore opens (creating if needed) the cache database at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, &models.IOError{Op: "create directory", Path: filepath.Dir(dbPath), Err: err}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, &models.IOError{Op: "open", Path: dbPath, Err: err}
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, &models.IOError{Op: "initialize", Path: dbPath, Err: err}
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database file location.
func (s *SQLiteRunStore) Path() string {
	return s.dbPath
}

// Get returns the cached run for key. Returns nil if not found.
func (s *SQLiteRunStore) Get(ctx context.Context, key string) (*models.CachedRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runJSON, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT run, created_at FROM runs WHERE key = ?`, key).Scan(&runJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", key, err)
	}
	return decodeEntry(key, runJSON, createdAt)
}

// Put caches run under its parameter-set key.
func (s *SQLiteRunStore) Put(ctx context.Context, run *models.SimulationRun) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (key, params, run, samples, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.Params.Key(), string(paramsJSON), string(runJSON), len(run.Series),
		s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// List returns every cached entry, oldest first.
func (s *SQLiteRunStore) List(ctx context.Context) ([]models.CachedRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, run, created_at FROM runs ORDER BY created_at, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []models.CachedRun
	for rows.Next() {
		var key, runJSON, createdAt string
		if err := rows.Scan(&key, &runJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		entry, err := decodeEntry(key, runJSON, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

// Delete removes an entry.
func (s *SQLiteRunStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func decodeEntry(key, runJSON, createdAt string) (*models.CachedRun, error) {
	var run models.SimulationRun
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", key, err)
	}
	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for run %s: %w", key, err)
	}
	return &models.CachedRun{Key: key, Run: &run, CreatedAt: ts}, nil
}
