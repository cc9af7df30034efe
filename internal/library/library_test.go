package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/narrator/internal/index"
	"github.com/dgnsrekt/narrator/internal/navigation"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetBook(ctx, "/books/a.epub")
			require.ErrorIs(t, err, ErrBookNotFound)

			idx := index.New()
			require.NoError(t, idx.Record("ch1.xhtml", []string{"/audio/01_part001.mp3"}))
			require.NoError(t, idx.Record("ch2.xhtml", []string{"/audio/02_part001.mp3", "/audio/02_part002.mp3"}))

			rec := &BookRecord{Path: "/books/a.epub", Title: "A Book", CurrentHref: "ch2.xhtml"}
			rec.SetIndex(idx)
			require.NoError(t, s.UpsertBook(ctx, rec))
			assert.False(t, rec.UpdatedAt.IsZero())

			got, err := s.GetBook(ctx, "/books/a.epub")
			require.NoError(t, err)
			assert.Equal(t, "A Book", got.Title)
			assert.Equal(t, "ch2.xhtml", got.CurrentHref)
			assert.Equal(t, idx.Entries(), got.AudioChapters)

			got.Title = "Renamed"
			got.AudioChapters = nil
			require.NoError(t, s.UpsertBook(ctx, got))

			again, err := s.GetBook(ctx, "/books/a.epub")
			require.NoError(t, err)
			assert.Equal(t, "Renamed", again.Title)
			assert.Empty(t, again.AudioChapters)
		})
	}
}

func TestUpsertRequiresPath(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.UpsertBook(context.Background(), &BookRecord{}))
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "library.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertBook(ctx, &BookRecord{
		Path:          "b.md",
		AudioChapters: []index.Entry{{Href: "b.md#intro", Paths: []string{"x.mp3"}}},
	}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	rec, err := s.GetBook(ctx, "b.md")
	require.NoError(t, err)
	require.Len(t, rec.AudioChapters, 1)
	assert.Equal(t, "b.md#intro", rec.AudioChapters[0].Href)
}

func TestChapterAudio(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := ChapterAudio(ctx, s, "book.epub", "ch1.xhtml")
	assert.ErrorIs(t, err, ErrNoAudio)

	require.NoError(t, s.UpsertBook(ctx, &BookRecord{
		Path:          "book.epub",
		AudioChapters: []index.Entry{{Href: "chapter1.xhtml", Paths: []string{"p1.mp3", "p2.mp3"}}},
	}))

	paths, err := ChapterAudio(ctx, s, "book.epub", "OEBPS/chapter1.xhtml#section2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1.mp3", "p2.mp3"}, paths)

	_, err = ChapterAudio(ctx, s, "book.epub", "appendix.xhtml")
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestExactChapterAudioMarkdownSections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "book.md")
	require.NoError(t, os.WriteFile(path, []byte("# One\n\nFirst text.\n\n# Two\n\nSecond text.\n"), 0o644))

	p, err := navigation.Open(path)
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck
	require.True(t, navigation.ExactHrefs(p))

	chapters, err := p.Chapters(ctx)
	require.NoError(t, err)
	require.Len(t, chapters, 2)

	s := NewMemoryStore()
	rec, err := LoadOrNew(ctx, s, path, p.Title())
	require.NoError(t, err)
	idx := rec.Index()
	require.NoError(t, idx.Record(chapters[0].Href, []string{"/audio/01_One_part001.mp3"}))
	rec.SetIndex(idx)
	require.NoError(t, s.UpsertBook(ctx, rec))

	paths, err := ExactChapterAudio(ctx, s, path, chapters[0].Href)
	require.NoError(t, err)
	assert.Equal(t, []string{"/audio/01_One_part001.mp3"}, paths)

	_, err = ExactChapterAudio(ctx, s, path, chapters[1].Href)
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestLoadOrNew(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec, err := LoadOrNew(ctx, s, "x.epub", "Title")
	require.NoError(t, err)
	assert.Equal(t, &BookRecord{Path: "x.epub", Title: "Title"}, rec)

	rec.CurrentHref = "c.xhtml"
	require.NoError(t, s.UpsertBook(ctx, rec))

	rec, err = LoadOrNew(ctx, s, "x.epub", "Other")
	require.NoError(t, err)
	assert.Equal(t, "Title", rec.Title)
	assert.Equal(t, "c.xhtml", rec.CurrentHref)
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := &BookRecord{Path: "p", AudioChapters: []index.Entry{{Href: "a", Paths: []string{"1"}}}}
	require.NoError(t, s.UpsertBook(ctx, rec))
	rec.AudioChapters[0].Paths[0] = "mutated"

	got, err := s.GetBook(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "1", got.AudioChapters[0].Paths[0])
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}

func TestSetCurrentKeepsAudio(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			idx := index.New()
			require.NoError(t, idx.Record("ch1.xhtml", []string{"/audio/a.mp3"}))
			rec := &BookRecord{Path: "/books/b.epub", Title: "B"}
			rec.SetIndex(idx)
			require.NoError(t, s.UpsertBook(ctx, rec))

			require.NoError(t, SetCurrent(ctx, s, "/books/b.epub", "B", "ch2.xhtml"))

			got, err := s.GetBook(ctx, "/books/b.epub")
			require.NoError(t, err)
			assert.Equal(t, "ch2.xhtml", got.CurrentHref)
			assert.Len(t, got.AudioChapters, 1)

			// unknown books are created
			require.NoError(t, SetCurrent(ctx, s, "/books/new.md", "New", "new.md"))
			got, err = s.GetBook(ctx, "/books/new.md")
			require.NoError(t, err)
			assert.Equal(t, "New", got.Title)
		})
	}
}
