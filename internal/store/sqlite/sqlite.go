// Package sqlite provides a sqlx-backed engine.Store[*engine.State]
// over mattn/go-sqlite3, for embedded and test deployments that want
// persistence without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kandev/taskscheduler/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduler_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	document TEXT NOT NULL
);
`

// Store is a SQLite-backed engine.Store[*engine.State].
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the SQLite database at path and
// ensures the backing table exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the persisted State, or an empty one if no row exists yet.
func (s *Store) Get(ctx context.Context) (*engine.State, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT document FROM scheduler_state WHERE id = 1`)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query scheduler_state: %w", err)
	}
	return engine.Deserialize([]byte(doc))
}

// Set persists value, replacing whatever was previously stored.
func (s *Store) Set(ctx context.Context, value *engine.State) error {
	doc, err := engine.Serialize(value)
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO scheduler_state (id, document) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET document = excluded.document
	`), string(doc))
	if err != nil {
		return fmt.Errorf("upsert scheduler_state: %w", err)
	}
	return nil
}
