package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session has never been saved.
var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store persists session documents, one JSON document per session.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and bootstraps) the sqlite database at path. Use
// ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the session document.
func (s *Store) Save(ctx context.Context, id string, doc *Document) error {
	data, err := doc.Export()
	if err != nil {
		return fmt.Errorf("serialize session %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		id, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// Load reads the session document, or ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM sessions WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	doc := NewDocument()
	if err := doc.Import([]byte(data)); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return doc, nil
}

// LoadOrCreate reads the session document, creating a fresh one if it has
// never been saved.
func (s *Store) LoadOrCreate(ctx context.Context, id string) (*Document, error) {
	doc, err := s.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return NewDocument(), nil
	}
	return doc, err
}
