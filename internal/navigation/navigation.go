// Package navigation opens books and exposes their chapter structure and
// chapter text.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrChapterNotFound is returned when an href names no chapter.
	ErrChapterNotFound = errors.New("chapter not found")
	// ErrUnsupportedFormat is returned by Open for unknown file types.
	ErrUnsupportedFormat = errors.New("unsupported book format")
)

// ChapterRef points at one chapter in navigation order.
type ChapterRef struct {
	Href  string
	Label string
	Order int
}

// Provider exposes a book's chapters.
type Provider interface {
	Title() string
	Chapters(ctx context.Context) ([]ChapterRef, error)
	ChapterText(ctx context.Context, href string) (string, error)
	Close() error
}

// Open picks a provider from the path's type: .epub, .md/.markdown, a
// directory of markdown files, or plain text.
func Open(path string) (Provider, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open book: %w", err)
	}
	if info.IsDir() {
		return OpenMarkdownDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return OpenEPUB(path)
	case ".md", ".markdown":
		return OpenMarkdown(path)
	case ".txt", ".text", "":
		return OpenText(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// section is an in-memory chapter used by the markdown and text providers.
type section struct {
	ref  ChapterRef
	text string
}

// sections is a Provider backed by fully loaded chapters.
type sections struct {
	title string
	items []section
}

func (s *sections) Title() string { return s.title }

func (s *sections) Chapters(context.Context) ([]ChapterRef, error) {
	refs := make([]ChapterRef, len(s.items))
	for i, it := range s.items {
		refs[i] = it.ref
	}
	return refs, nil
}

func (s *sections) ChapterText(_ context.Context, href string) (string, error) {
	for _, it := range s.items {
		if it.ref.Href == href {
			return it.text, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrChapterNotFound, href)
}

func (s *sections) Close() error { return nil }

// ExactHrefs reports whether p's chapters may only be looked up by their
// exact href. Markdown and text sections share one file path and differ in
// the fragment, yet each fragment names its own text, so a match with the
// fragment stripped would land on a sibling.
func ExactHrefs(p Provider) bool {
	_, ok := p.(*sections)
	return ok
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// slugify turns a heading into a fragment identifier.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// uniqueSlugs hands out fragment ids, suffixing repeats.
type uniqueSlugs map[string]int

func (u uniqueSlugs) next(heading string) string {
	slug := slugify(heading)
	if slug == "" {
		slug = "section"
	}
	n := u[slug]
	u[slug] = n + 1
	if n == 0 {
		return slug
	}
	return fmt.Sprintf("%s-%d", slug, n)
}

// normalizeText collapses runs of spaces inside lines and drops blank lines
// so chapter text reaches the segmenter as clean paragraphs.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// endSentence terminates a heading so it does not run into the next line.
func endSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		return s
	}
	return s + "."
}
