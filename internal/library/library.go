// Package library stores per-book metadata: the reading position and the
// chapter audio index written by recording jobs.
package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/narrator/internal/index"
)

var (
	// ErrBookNotFound is returned when no record exists for a path.
	ErrBookNotFound = errors.New("book not found")
	// ErrNoAudio is returned when a chapter has no recorded audio.
	ErrNoAudio = errors.New("no audio available")
)

// BookRecord is the persisted metadata for one book.
type BookRecord struct {
	Path          string
	Title         string
	CurrentHref   string
	AudioChapters []index.Entry
	UpdatedAt     time.Time
}

// Index returns the record's chapter audio index.
func (b *BookRecord) Index() *index.Index {
	return index.FromEntries(b.AudioChapters)
}

// SetIndex replaces the record's audio chapters with idx's entries.
func (b *BookRecord) SetIndex(idx *index.Index) {
	b.AudioChapters = idx.Entries()
}

// Store persists book records keyed by path.
type Store interface {
	GetBook(ctx context.Context, path string) (*BookRecord, error)
	UpsertBook(ctx context.Context, rec *BookRecord) error
	Close() error
}

// LoadOrNew returns the stored record for path, or a fresh one carrying
// title when none exists yet.
func LoadOrNew(ctx context.Context, s Store, path, title string) (*BookRecord, error) {
	rec, err := s.GetBook(ctx, path)
	if errors.Is(err, ErrBookNotFound) {
		return &BookRecord{Path: path, Title: title}, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Title == "" {
		rec.Title = title
	}
	return rec, nil
}

// ChapterAudio resolves href to its recorded artifacts for the book at
// bookPath, accepting a fragment-tolerant match. A missing book or chapter
// yields ErrNoAudio.
func ChapterAudio(ctx context.Context, s Store, bookPath, href string) ([]string, error) {
	return chapterAudio(ctx, s, bookPath, href, (*index.Index).Resolve)
}

// ExactChapterAudio is ChapterAudio restricted to the exact href, for books
// whose sibling chapters differ only in the fragment.
func ExactChapterAudio(ctx context.Context, s Store, bookPath, href string) ([]string, error) {
	return chapterAudio(ctx, s, bookPath, href, (*index.Index).Lookup)
}

func chapterAudio(ctx context.Context, s Store, bookPath, href string, resolve func(*index.Index, string) ([]string, bool)) ([]string, error) {
	rec, err := s.GetBook(ctx, bookPath)
	if errors.Is(err, ErrBookNotFound) {
		return nil, fmt.Errorf("%w for %s", ErrNoAudio, href)
	}
	if err != nil {
		return nil, err
	}
	paths, ok := resolve(rec.Index(), href)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoAudio, href)
	}
	return paths, nil
}

// SetCurrent records href as the chapter the reader is on.
func SetCurrent(ctx context.Context, s Store, path, title, href string) error {
	rec, err := LoadOrNew(ctx, s, path, title)
	if err != nil {
		return err
	}
	if rec.CurrentHref == href {
		return nil
	}
	rec.CurrentHref = href
	return s.UpsertBook(ctx, rec)
}
