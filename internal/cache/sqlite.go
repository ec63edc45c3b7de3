// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/eventparse/pkg/types"
)

// SQLite is a store backed by a single-table SQLite database, shared by
// every process pointed at the same file.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLite opens or creates the cache database at path and creates the
// schema if it does not exist.
func NewSQLite(path string, ttl time.Duration) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, ttl: ttl}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_expires_at ON events(expires_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) (*types.NormalizedEvent, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM events WHERE key = ? AND expires_at > ?`,
		key, now().UnixNano(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	ev, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

// Put inserts the entry, or replaces an expired one. A concurrent writer
// that loses the race leaves the first value in place.
func (s *SQLite) Put(ctx context.Context, key string, ev *types.NormalizedEvent) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	t := now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
		WHERE events.expires_at <= excluded.created_at`,
		key, data, t.UnixNano(), t.Add(s.ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE expires_at <= ?`, now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged entries: %w", err)
	}
	return int(n), nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
