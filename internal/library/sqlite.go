package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgnsrekt/narrator/internal/index"
	_ "modernc.org/sqlite"
)

// MemoryPath selects an in-memory store instead of a database file.
const MemoryPath = ":memory:"

// SQLiteStore keeps book records in a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create library dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("init library schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS books (
    path TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    current_href TEXT NOT NULL DEFAULT '',
    audio_chapters TEXT NOT NULL DEFAULT '[]',
    updated_at TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// GetBook implements Store.
func (s *SQLiteStore) GetBook(ctx context.Context, path string) (*BookRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, title, current_href, audio_chapters, updated_at FROM books WHERE path = ?`, path)

	var (
		rec      BookRecord
		chapters string
		updated  string
	)
	if err := row.Scan(&rec.Path, &rec.Title, &rec.CurrentHref, &chapters, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBookNotFound, path)
		}
		return nil, fmt.Errorf("query book: %w", err)
	}
	if err := json.Unmarshal([]byte(chapters), &rec.AudioChapters); err != nil {
		return nil, fmt.Errorf("decode audio chapters for %s: %w", path, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// UpsertBook implements Store. UpdatedAt is set to the current time.
func (s *SQLiteStore) UpsertBook(ctx context.Context, rec *BookRecord) error {
	if rec == nil || rec.Path == "" {
		return errors.New("book record requires a path")
	}
	chapters := rec.AudioChapters
	if chapters == nil {
		chapters = []index.Entry{}
	}
	encoded, err := json.Marshal(chapters)
	if err != nil {
		return fmt.Errorf("encode audio chapters: %w", err)
	}

	rec.UpdatedAt = s.clock().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO books(path, title, current_href, audio_chapters, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   title=excluded.title,
		   current_href=excluded.current_href,
		   audio_chapters=excluded.audio_chapters,
		   updated_at=excluded.updated_at`,
		rec.Path, rec.Title, rec.CurrentHref, string(encoded), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
