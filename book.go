package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/internal/index"
	"github.com/dgnsrekt/narrator/internal/library"
	"github.com/dgnsrekt/narrator/internal/navigation"
)

var errNoChapters = errors.New("book has no chapters")

// book is an opened book together with its library record.
type book struct {
	path     string
	provider navigation.Provider
	store    library.Store
	record   *library.BookRecord
}

func openBook(ctx context.Context, arg string) (*book, error) {
	abs, err := filepath.Abs(config.ExpandPath(arg))
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}

	provider, err := navigation.Open(abs)
	if err != nil {
		return nil, err
	}

	store, err := library.Open(ctx, cfg.Library.Path)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	rec, err := library.LoadOrNew(ctx, store, abs, provider.Title())
	if err != nil {
		_ = provider.Close()
		_ = store.Close()
		return nil, err
	}

	return &book{path: abs, provider: provider, store: store, record: rec}, nil
}

func (b *book) title() string {
	if b.record.Title != "" {
		return b.record.Title
	}
	return b.provider.Title()
}

func (b *book) chapters(ctx context.Context) ([]navigation.ChapterRef, error) {
	chapters, err := b.provider.Chapters(ctx)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		return nil, errNoChapters
	}
	return chapters, nil
}

// chapter resolves a --chapter query against the book.
func (b *book) chapter(ctx context.Context, query string) (navigation.ChapterRef, error) {
	chapters, err := b.chapters(ctx)
	if err != nil {
		return navigation.ChapterRef{}, err
	}
	return resolveChapter(chapters, query, b.record.CurrentHref)
}

// markCurrent remembers href as the reader's position. Failures are not
// fatal to the command that triggered them.
func (b *book) markCurrent(ctx context.Context, href string) error {
	if err := library.SetCurrent(ctx, b.store, b.path, b.title(), href); err != nil {
		return fmt.Errorf("unable to save current chapter: %w", err)
	}
	b.record.CurrentHref = href
	return nil
}

func (b *book) Close() error {
	return errors.Join(b.provider.Close(), b.store.Close())
}

// resolveChapter picks a chapter by href, by 1-based number, or by fuzzy
// label match, in that order. An empty query selects the current chapter,
// falling back to the first.
func resolveChapter(chapters []navigation.ChapterRef, query, current string) (navigation.ChapterRef, error) {
	if len(chapters) == 0 {
		return navigation.ChapterRef{}, errNoChapters
	}

	query = strings.TrimSpace(query)
	if query == "" {
		if current != "" {
			if ch, ok := byHref(chapters, current); ok {
				return ch, nil
			}
		}
		return chapters[0], nil
	}

	if ch, ok := byHref(chapters, query); ok {
		return ch, nil
	}

	if n, err := strconv.Atoi(query); err == nil {
		if n < 1 || n > len(chapters) {
			return navigation.ChapterRef{}, fmt.Errorf("chapter %d is out of range (1-%d)", n, len(chapters))
		}
		return chapters[n-1], nil
	}

	labels := make([]string, len(chapters))
	for i, ch := range chapters {
		labels[i] = ch.Label
	}
	if matches := fuzzy.Find(query, labels); len(matches) > 0 {
		return chapters[matches[0].Index], nil
	}

	return navigation.ChapterRef{}, fmt.Errorf("%w: nothing matches %q", navigation.ErrChapterNotFound, query)
}

// byHref finds an exact href first, then a fragment-tolerant match.
func byHref(chapters []navigation.ChapterRef, href string) (navigation.ChapterRef, bool) {
	for _, ch := range chapters {
		if ch.Href == href {
			return ch, true
		}
	}
	if !strings.ContainsAny(href, "/#.") {
		return navigation.ChapterRef{}, false
	}
	for _, ch := range chapters {
		if index.Match(ch.Href, href) {
			return ch, true
		}
	}
	return navigation.ChapterRef{}, false
}

func bookCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"epub", "md", "markdown", "txt"}, cobra.ShellCompDirectiveFilterFileExt
}
