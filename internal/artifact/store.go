// Package artifact persists synthesized audio under deterministic names.
// Every book gets its own folder below the store root.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLabelLength bounds the sanitized label, in runes.
const MaxLabelLength = 40

const (
	dirPerm  = 0o755
	filePerm = 0o644

	fallbackLabel = "chapter"
	fallbackBook  = "book"
)

var (
	// ErrEmptyAudio is returned when asked to save zero bytes.
	ErrEmptyAudio = errors.New("audio data is empty")
	// ErrInvalidName is returned for file names that would escape the folder.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Store is a filesystem-backed artifact store.
type Store struct {
	root string
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("artifact root cannot be empty")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// EnsureFolder returns the book's folder, creating it if needed.
func (s *Store) EnsureFolder(bookTitle string) (string, error) {
	name := sanitize(bookTitle, 0)
	if name == "" {
		name = fallbackBook
	}
	return ensureDir(filepath.Join(s.root, name))
}

// EnsureSubfolder creates a named directory inside folder.
func (s *Store) EnsureSubfolder(folder, name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return ensureDir(filepath.Join(folder, name))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", dir, err)
	}
	return dir, nil
}

// Save writes audio to folder/name and returns the full path. An existing
// file with the same name is replaced. The write goes through a temporary
// file so a failure never leaves a truncated artifact behind.
func (s *Store) Save(folder, name string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path := filepath.Join(folder, name)
	if err := writeFile(path, audio); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return path, nil
}

// Exists reports whether path names an existing regular file.
func (s *Store) Exists(path string) bool {
	return Exists(path)
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes the given artifacts. Missing files are ignored.
func (s *Store) Remove(paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		_ = os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}

// ChapterFileName names a batch-mode artifact. order and part are 0-based
// and printed 1-based.
func ChapterFileName(order int, label string, part int) string {
	return fmt.Sprintf("%02d_%s_part%03d.mp3", order+1, SanitizeLabel(label), part+1)
}

// CurrentChapterFileName names a single-chapter artifact.
func CurrentChapterFileName(part int) string {
	return fmt.Sprintf("current_chapter_part%03d.mp3", part+1)
}

// ChapterFolderName names the per-chapter folder used by single-chapter runs.
func ChapterFolderName(order int, label string) string {
	return fmt.Sprintf("%02d_%s", order+1, SanitizeLabel(label))
}

// SanitizeLabel makes a chapter label safe for use in a file name.
func SanitizeLabel(label string) string {
	s := sanitize(label, MaxLabelLength)
	if s == "" {
		return fallbackLabel
	}
	return s
}

// stripMarks folds accented letters to their base form.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitize drops path-hostile and control characters, folds whitespace to
// underscores and truncates to limit runes (0 means unbounded).
func sanitize(s string, limit int) string {
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), r == '_':
			pendingSep = b.Len() > 0
			continue
		case unicode.IsControl(r), strings.ContainsRune(`<>:"/\|?*`, r):
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), "._-")
	if limit > 0 {
		if r := []rune(out); len(r) > limit {
			out = strings.TrimRight(string(r[:limit]), "._-")
		}
	}
	return out
}
