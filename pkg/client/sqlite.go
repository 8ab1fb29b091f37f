package client

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable, cross-process session store backed by a
// single-table SQLite database. It is the default store for the CLI,
// where sessions must survive across invocations.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't open session database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS session (
			key    TEXT PRIMARY KEY,
			value  TEXT NOT NULL
		);`,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't init session table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) (string, error) {
	row := s.db.QueryRow(`
		SELECT value
		FROM session
		WHERE key=?;`,
		key,
	)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("couldn't read session entry: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(key string, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO session (key, value)
		VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value=excluded.value;`,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("couldn't write session entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(key string) error {
	_, err := s.db.Exec(`
		DELETE FROM session
		WHERE key=?;`,
		key,
	)
	if err != nil {
		return fmt.Errorf("couldn't delete session entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
