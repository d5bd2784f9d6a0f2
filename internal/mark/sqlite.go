package mark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS marks (
	source     TEXT NOT NULL,
	comic_id   TEXT NOT NULL,
	chapter_id TEXT NOT NULL,
	marked_at  DATETIME NOT NULL,
	PRIMARY KEY (source, comic_id, chapter_id)
);`

// SQLiteStore keeps marks in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Fetch branches check marks concurrently; serialize on one connection
	// so writers never hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// IsMarked reports whether key has a row.
func (s *SQLiteStore) IsMarked(ctx context.Context, key Key) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM marks WHERE source = ? AND comic_id = ? AND chapter_id = ?`,
		key.Source, key.ComicID, key.ChapterID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query mark %s: %w", key, err)
	}
	return true, nil
}

// Mark inserts key, keeping the first timestamp when it already exists.
func (s *SQLiteStore) Mark(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO marks (source, comic_id, chapter_id, marked_at) VALUES (?, ?, ?, ?)`,
		key.Source, key.ComicID, key.ChapterID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert mark %s: %w", key, err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
