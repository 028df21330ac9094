// Package localstore persists small client-side values (UI flags, offline state) as JSON in
// a single-table SQLite file. A nil or closed Store reads as empty and ignores writes.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch())
)`

type Store struct {
	logger *zap.Logger

	mu sync.RWMutex
	db *sql.DB
}

// Open creates or opens the store at path. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create local store schema: %w", err)
	}
	return &Store{logger: logger, db: db}, nil
}

func (s *Store) conn() *sql.DB {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Get decodes the value under key into a T. ok is false when the key is absent, the store
// is unavailable or the stored value no longer decodes as T.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T
	raw, ok := s.raw(ctx, key)
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		s.logger.Warn("decode local value", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return value, true
}

// GetOr is Get with a fallback for missing values.
func GetOr[T any](ctx context.Context, s *Store, key string, fallback T) T {
	if value, ok := Get[T](ctx, s, key); ok {
		return value
	}
	return fallback
}

func (s *Store) raw(ctx context.Context, key string) ([]byte, bool) {
	db := s.conn()
	if db == nil {
		return nil, false
	}
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("read local value", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return []byte(raw), true
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	db := s.conn()
	if db == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode local value %q: %w", key, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data))
	if err != nil {
		return fmt.Errorf("write local value %q: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	db := s.conn()
	if db == nil {
		return nil
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove local value %q: %w", key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	db := s.conn()
	if db == nil {
		return nil
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear local store: %w", err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	db := s.conn()
	if db == nil {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list local keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan local key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
