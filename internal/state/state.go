// Package state persists extension key-value state across host
// restarts. Rows are scoped by extension id so one extension can never
// read another's state.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS extension_state (
	extension_id TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        TEXT NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (extension_id, key)
);
`

// Store is the durable key-value collaborator backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path. Use
// ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the JSON value stored for (extensionID, key), or
// ok=false when absent.
func (s *Store) Get(ctx context.Context, extensionID, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM extension_state WHERE extension_id = ? AND key = ?`,
		extensionID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get state %s/%s: %w", extensionID, key, err)
	}
	return json.RawMessage(value), true, nil
}

// Set upserts a JSON-encodable value for (extensionID, key) and bumps
// its timestamp.
func (s *Store) Set(ctx context.Context, extensionID, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s/%s: %w", extensionID, key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extension_state (extension_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (extension_id, key)
		 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		extensionID, key, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set state %s/%s: %w", extensionID, key, err)
	}
	return nil
}

// Scoped returns a view locked to one extension id, satisfying the SDK
// StateStore contract handed to extensions.
func (s *Store) Scoped(extensionID string) *Scoped {
	return &Scoped{store: s, extensionID: extensionID}
}

// Scoped is a per-extension view over the shared store.
type Scoped struct {
	store       *Store
	extensionID string
}

func (s *Scoped) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	return s.store.Get(ctx, s.extensionID, key)
}

func (s *Scoped) Set(ctx context.Context, key string, value any) error {
	return s.store.Set(ctx, s.extensionID, key, value)
}
