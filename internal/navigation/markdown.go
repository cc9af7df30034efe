package navigation

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// chapterHeadingLevel is the deepest heading that starts a new chapter.
const chapterHeadingLevel = 2

// OpenMarkdown loads a markdown file, one chapter per heading of level one
// or two. Text before the first heading becomes its own chapter.
func OpenMarkdown(path string) (Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	base := filepath.Base(path)
	title, items := splitMarkdown(base, data)
	if title == "" {
		title = titleFromPath(path)
	}
	for i := range items {
		items[i].ref.Order = i
	}
	return &sections{title: title, items: items}, nil
}

// OpenMarkdownDir loads every markdown file in dir, sorted by name, one
// chapter per file.
func OpenMarkdownDir(dir string) (Provider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read book directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".md" || ext == ".markdown") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	s := &sections{title: filepath.Base(filepath.Clean(dir))}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read markdown: %w", err)
		}
		heading, chapters := splitMarkdown(name, data)

		var parts []string
		for _, c := range chapters {
			parts = append(parts, c.text)
		}
		label := heading
		if label == "" {
			label = titleFromPath(name)
		}
		s.items = append(s.items, section{
			ref:  ChapterRef{Href: name, Label: label, Order: len(s.items)},
			text: strings.Join(parts, "\n"),
		})
	}
	if len(s.items) == 0 {
		return nil, fmt.Errorf("%w: no markdown files in %s", ErrChapterNotFound, dir)
	}
	return s, nil
}

// splitMarkdown returns the first heading's text and the file's chapters.
func splitMarkdown(base string, source []byte) (string, []section) {
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var (
		firstHeading string
		items        []section
		current      *section
		buf          bytes.Buffer
		slugs        = uniqueSlugs{}
	)

	flush := func() {
		body := normalizeText(buf.String())
		buf.Reset()
		if current == nil {
			if body == "" {
				return
			}
			current = &section{ref: ChapterRef{Href: base, Label: titleFromPath(base)}}
		}
		current.text = body
		items = append(items, *current)
		current = nil
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= chapterHeadingLevel {
			label := inlineText(h, source)
			if firstHeading == "" {
				firstHeading = label
			}
			flush()
			current = &section{ref: ChapterRef{Href: base + "#" + slugs.next(label), Label: label}}
			buf.WriteString(endSentence(label))
			buf.WriteByte('\n')
			continue
		}
		writeBlock(n, source, &buf)
	}
	flush()

	return firstHeading, items
}

// writeBlock appends the speakable text of a block node.
func writeBlock(node ast.Node, source []byte, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
		return
	case *ast.Heading:
		buf.WriteString(endSentence(inlineText(n, source)))
		buf.WriteByte('\n')
	case *ast.Paragraph, *ast.TextBlock:
		buf.WriteString(inlineText(n, source))
		buf.WriteByte('\n')
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			writeBlock(c, source, buf)
		}
	}
}

// inlineText flattens inline children to plain text.
func inlineText(node ast.Node, source []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
			return
		case *ast.String:
			b.Write(t.Value)
			return
		case *ast.RawHTML, *ast.Image:
			return
		case *ast.AutoLink:
			b.Write(t.Label(source))
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(node)
	return strings.TrimSpace(b.String())
}
