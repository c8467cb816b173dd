// Package postgres provides a Postgres-backed cache backend. Each project key
// maps to one row holding the serialized cache record.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/build-progress/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for cache rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// CacheStore reads and writes cache payloads in a single table:
//
//	CREATE TABLE build_cache (
//	    project_key TEXT PRIMARY KEY,
//	    payload     JSONB NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
type CacheStore struct {
	pool  querier
	table string
	now   func() time.Time
}

// NewCacheStore opens a pool for cfg.DSN.
func NewCacheStore(ctx context.Context, cfg Config) (*CacheStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewCacheStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewCacheStoreWithPool wraps an existing pool, primarily for tests.
func NewCacheStoreWithPool(pool querier, table string) (*CacheStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "build_cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CacheStore{
		pool:  pool,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Read loads the payload for key or returns storage.ErrNotFound.
func (s *CacheStore) Read(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE project_key = $1`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read cache row: %w", err)
	}
	return payload, nil
}

// Write upserts the payload for key, replacing the previous row content.
func (s *CacheStore) Write(ctx context.Context, key string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (project_key, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_key) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at;
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, key, data, s.now()); err != nil {
		return fmt.Errorf("failed to upsert cache row: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *CacheStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
