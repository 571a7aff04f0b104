// Package store persists config entries created by the setup flow in SQLite. At most one entry may exist per domain.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Driver is the database/sql driver name the store opens databases with.
const Driver = "sqlite"

// ErrEntryExists is the error returned by Store.Create when an entry already exists for the domain.
var ErrEntryExists = errors.New("config entry already exists for domain")

// Entry is a persisted config entry.
type Entry struct {
	ID      string
	Domain  string
	Title   string
	Version int
	Data    map[string]any

	CreatedAt time.Time
}

// Store holds config entries. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open(Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS config_entries (
		id         TEXT PRIMARY KEY,
		domain     TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL,
		version    INTEGER NOT NULL,
		data       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Entries returns the entries for domain, oldest first.
func (s *Store) Entries(ctx context.Context, domain string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, title, version, data, created_at FROM config_entries WHERE domain = ? ORDER BY created_at`,
		domain,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", domain, err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var (
			e         Entry
			data      string
			createdAt string
		)

		if err = rows.Scan(&e.ID, &e.Domain, &e.Title, &e.Version, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry for %s: %w", domain, err)
		}

		if err = json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decode data of entry %s: %w", e.ID, err)
		}

		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at of entry %s: %w", e.ID, err)
		}

		result = append(result, e)
	}

	return result, rows.Err()
}

// Create inserts e. It returns ErrEntryExists if the domain already has an entry, including when another caller
// created one concurrently. A zero CreatedAt is set to the current time.
func (s *Store) Create(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	data := e.Data
	if data == nil {
		data = map[string]any{}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode data of entry %s: %w", e.ID, err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO config_entries (id, domain, title, version, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain) DO NOTHING`,
		e.ID, e.Domain, e.Title, e.Version, string(encoded), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", e.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create entry %s: %w", e.ID, err)
	}

	if n == 0 {
		return fmt.Errorf("create entry %s: %w", e.Domain, ErrEntryExists)
	}

	return nil
}
