package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	title TEXT PRIMARY KEY,
	id    TEXT NOT NULL,
	text  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS pages_id ON pages (id);
`

// SQLiteStore keeps pages in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Page(ctx context.Context, title string) (Page, error) {
	p := Page{Title: NormalizeTitle(title)}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, text FROM pages WHERE title = ?", p.Title).Scan(&p.ID, &p.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, fmt.Errorf("%w: %s", ErrNotFound, title)
	}
	if err != nil {
		return Page{}, fmt.Errorf("query page %s: %w", p.Title, err)
	}
	return p, nil
}

func (s *SQLiteStore) Source(ctx context.Context, id string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		"SELECT text FROM pages WHERE id = ? LIMIT 1", id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("query source %s: %w", id, err)
	}
	return text, nil
}

func (s *SQLiteStore) Put(ctx context.Context, title, text string) (Page, error) {
	p := NewPage(title, text)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO pages (title, id, text) VALUES (?, ?, ?)
ON CONFLICT (title) DO UPDATE SET id = excluded.id, text = excluded.text`,
		p.Title, p.ID, p.Text)
	if err != nil {
		return Page{}, fmt.Errorf("store page %s: %w", p.Title, err)
	}
	return p, nil
}

// Titles lists the stored titles in order.
func (s *SQLiteStore) Titles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT title FROM pages ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
