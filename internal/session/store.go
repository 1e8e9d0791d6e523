// Package session persists which files the watch session has annotated,
// together with their pristine content, so a crashed session can still be
// rolled back afterwards.
package session

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS touched_files (
	path     TEXT PRIMARY KEY,
	original BLOB NOT NULL,
	stamp    INTEGER NOT NULL
);`

// Store is a sqlite-backed registry of touched files.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the session store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RecordOriginal stores the pristine content of path on first touch. Later
// touches keep the first snapshot.
func (s *Store) RecordOriginal(path string, content []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO touched_files (path, original, stamp) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO NOTHING`,
		path, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record %s: %w", path, err)
	}
	return nil
}

// Touched lists every recorded path with its pristine content.
func (s *Store) Touched() (map[string][]byte, error) {
	rows, err := s.db.Query(`SELECT path, original FROM touched_files`)
	if err != nil {
		return nil, fmt.Errorf("list touched files: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var path string
		var original []byte
		if err := rows.Scan(&path, &original); err != nil {
			return nil, fmt.Errorf("scan touched file: %w", err)
		}
		out[path] = original
	}
	return out, rows.Err()
}

// Clear drops all records, closing out a session cleanly.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM touched_files`); err != nil {
		return fmt.Errorf("clear session store: %w", err)
	}
	return nil
}
