// Package store keeps saved simulation progress as opaque values under string
// keys. SQLite is the durable default; Redis and an in-memory map serve
// shared and throwaway setups.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load when nothing is stored under the key.
var ErrNotFound = errors.New("key not found")

// ErrQuotaExceeded is returned by Save when the value is larger than the
// store's byte quota. The previously stored value is kept.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// DefaultQuotaBytes mirrors the per-origin limit of browser local storage.
const DefaultQuotaBytes = 5 << 20

func checkQuota(quota int, key string, value []byte) error {
	if quota > 0 && len(value) > quota {
		return fmt.Errorf("save %s: %d bytes over %d byte limit: %w", key, len(value), quota, ErrQuotaExceeded)
	}
	return nil
}

// SQLite is a key-value store in a single SQLite table.
type SQLite struct {
	db    *sql.DB
	quota int
}

// New opens (or creates) the database at dbPath. A quota of zero or less
// disables the size check.
func New(dbPath string, quota int) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLite{db: db, quota: quota}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts value under key.
func (s *SQLite) Save(ctx context.Context, key string, value []byte) error {
	if err := checkQuota(s.quota, key, value); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
		key, value, now, value, now,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Load returns the value stored under key.
func (s *SQLite) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

// Clear removes key. Clearing a missing key is not an error.
func (s *SQLite) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}
