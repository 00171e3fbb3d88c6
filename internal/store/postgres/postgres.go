// Package postgres provides a pgx-backed engine.Store[*engine.State].
// State is persisted as a single JSONB document in a single-row table,
// and an advisory-lock engine.Lock gives multiple instances sharing the
// database a real cross-process exclusive section.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kandev/taskscheduler/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduler_state (
	id SMALLINT PRIMARY KEY,
	document JSONB NOT NULL
);
`

// Config holds the connection-pool knobs the store exposes.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// Store is a PostgreSQL-backed engine.Store[*engine.State]. The single
// persisted document lives under a fixed row id; Get/Set round-trip it
// through engine.Serialize/Deserialize.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, ensures the backing table exists, and
// returns a Store ready for use.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure scheduler_state table: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// AdvisoryLock returns an engine.Lock serialized on the given advisory
// lock key, sharing this store's connection pool.
func (s *Store) AdvisoryLock(key int64) *Lock {
	return NewLock(s.pool, key)
}

// Get returns the persisted State, or an empty one if no row exists yet.
func (s *Store) Get(ctx context.Context) (*engine.State, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM scheduler_state WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query scheduler_state: %w", err)
	}
	return engine.Deserialize(doc)
}

// Set persists value, replacing whatever was previously stored.
func (s *Store) Set(ctx context.Context, value *engine.State) error {
	doc, err := engine.Serialize(value)
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scheduler_state (id, document) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`, doc)
	if err != nil {
		return fmt.Errorf("upsert scheduler_state: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error or panic
// and committing otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Lock is a PostgreSQL advisory-lock-backed engine.Lock, giving
// multiple scheduler instances pointed at the same database a real
// cross-process exclusive section (unlike the in-memory Lock, which
// only serializes goroutines within one process).
type Lock struct {
	pool *pgxpool.Pool
	key  int64
}

// NewLock returns a Lock that serializes on PostgreSQL advisory lock
// key. All scheduler instances sharing a database should use the same
// key (the default, 1, is fine for a single scheduler deployment).
func NewLock(pool *pgxpool.Pool, key int64) *Lock {
	return &Lock{pool: pool, key: key}
}

// Acquire blocks (via a pooled connection) until the advisory lock is
// granted or ctx is cancelled.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, l.key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	release := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
		conn.Release()
	}
	return release, nil
}
