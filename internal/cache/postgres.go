package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS reconciler_cache (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore persists entries in the reconciler_cache table.
type PostgresStore struct {
	db     *pgxpool.Pool
	prefix string
}

// NewPostgresStore constructs a Postgres-backed store. prefix namespaces every key.
func NewPostgresStore(db *pgxpool.Pool, prefix string) *PostgresStore {
	return &PostgresStore{db: db, prefix: prefix}
}

// EnsureSchema creates the cache table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// Get returns the raw value stored at key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM reconciler_cache WHERE key = $1`, s.prefix+key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select cache %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value at key. Concurrent writers race; the last one wins.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	const query = `
        INSERT INTO reconciler_cache (key, value, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := s.db.Exec(ctx, query, s.prefix+key, value); err != nil {
		return fmt.Errorf("upsert cache %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM reconciler_cache WHERE key = $1`, s.prefix+key); err != nil {
		return fmt.Errorf("delete cache %s: %w", key, err)
	}
	return nil
}

// Clear removes every key under the store prefix.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM reconciler_cache WHERE starts_with(key, $1)`, s.prefix); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
