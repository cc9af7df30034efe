// Package index maps chapter identifiers to their recorded audio artifacts.
//
// Navigation tables and a document's internal links often name the same
// chapter differently ("chapter1.xhtml" versus "OEBPS/chapter1.xhtml#s2"),
// so lookups fall back to Match when no key is byte-equal.
package index

import (
	"errors"
	"strings"
)

// ErrEmptyArtifacts is returned when recording a chapter with no artifacts.
var ErrEmptyArtifacts = errors.New("no artifacts to record")

// Entry is one recorded chapter.
type Entry struct {
	Href  string   `json:"href"`
	Paths []string `json:"paths"`
}

// Index is an insertion-ordered chapter → artifacts map. The zero value is
// ready to use. It is not safe for concurrent mutation.
type Index struct {
	entries []Entry
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// FromEntries rebuilds an index from persisted entries, keeping their order.
// Entries with no paths are dropped.
func FromEntries(entries []Entry) *Index {
	idx := &Index{}
	for _, e := range entries {
		_ = idx.Record(e.Href, e.Paths)
	}
	return idx
}

// Record stores paths under the exact key href. An existing entry for the
// same key is overwritten in place.
func (x *Index) Record(href string, paths []string) error {
	if len(paths) == 0 {
		return ErrEmptyArtifacts
	}
	cp := make([]string, len(paths))
	copy(cp, paths)

	for i := range x.entries {
		if x.entries[i].Href == href {
			x.entries[i].Paths = cp
			return nil
		}
	}
	x.entries = append(x.entries, Entry{Href: href, Paths: cp})
	return nil
}

// Resolve returns the artifacts for href. An exact key wins; otherwise the
// first key in insertion order accepted by Match is used.
func (x *Index) Resolve(href string) ([]string, bool) {
	if paths, ok := x.Lookup(href); ok {
		return paths, true
	}
	for _, e := range x.entries {
		if Match(e.Href, href) {
			return cloneStrings(e.Paths), true
		}
	}
	return nil, false
}

// Lookup returns the artifacts recorded under exactly href.
func (x *Index) Lookup(href string) ([]string, bool) {
	for _, e := range x.entries {
		if e.Href == href {
			return cloneStrings(e.Paths), true
		}
	}
	return nil, false
}

// Has reports whether href resolves to any artifacts.
func (x *Index) Has(href string) bool {
	_, ok := x.Resolve(href)
	return ok
}

// Len returns the number of recorded chapters.
func (x *Index) Len() int {
	return len(x.entries)
}

// Entries returns a copy of the entries in insertion order.
func (x *Index) Entries() []Entry {
	out := make([]Entry, len(x.entries))
	for i, e := range x.entries {
		out[i] = Entry{Href: e.Href, Paths: cloneStrings(e.Paths)}
	}
	return out
}

// Match reports whether a recorded key refers to the same chapter as query:
// query contains the key, or the key contains query's path with its
// fragment stripped. Empty keys and empty paths never match.
func Match(recorded, query string) bool {
	if recorded == "" || query == "" {
		return false
	}
	if strings.Contains(query, recorded) {
		return true
	}
	path := StripFragment(query)
	return path != "" && strings.Contains(recorded, path)
}

// StripFragment removes a trailing "#fragment" from href.
func StripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
