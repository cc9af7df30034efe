package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/internal/index"
	"github.com/dgnsrekt/narrator/internal/job"
	"github.com/dgnsrekt/narrator/internal/library"
	"github.com/dgnsrekt/narrator/internal/navigation"
)

var testChapters = []navigation.ChapterRef{
	{Href: "text/ch01.xhtml", Label: "Loomings", Order: 0},
	{Href: "text/ch02.xhtml", Label: "The Carpet-Bag", Order: 1},
	{Href: "text/ch03.xhtml#spouter", Label: "The Spouter-Inn", Order: 2},
}

func TestResolveChapter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		current string
		want    string
	}{
		{"default first", "", "", "text/ch01.xhtml"},
		{"default current", "", "text/ch02.xhtml", "text/ch02.xhtml"},
		{"stale current falls back", "", "gone.xhtml", "text/ch01.xhtml"},
		{"exact href", "text/ch02.xhtml", "", "text/ch02.xhtml"},
		{"href without fragment", "text/ch03.xhtml", "", "text/ch03.xhtml#spouter"},
		{"number", "3", "", "text/ch03.xhtml#spouter"},
		{"fuzzy label", "carpet", "", "text/ch02.xhtml"},
		{"fuzzy label subsequence", "sptr", "", "text/ch03.xhtml#spouter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveChapter(testChapters, tt.query, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Href)
		})
	}
}

func TestResolveChapterErrors(t *testing.T) {
	_, err := resolveChapter(nil, "", "")
	assert.ErrorIs(t, err, errNoChapters)

	_, err = resolveChapter(testChapters, "4", "")
	assert.ErrorContains(t, err, "out of range")

	_, err = resolveChapter(testChapters, "zzzz", "")
	assert.ErrorIs(t, err, navigation.ErrChapterNotFound)
}

func TestWriteChapterTable(t *testing.T) {
	idx := index.New()
	require.NoError(t, idx.Record("text/ch02.xhtml", []string{"/a/02_part001.mp3"}))

	chapters := append([]navigation.ChapterRef(nil), testChapters...)
	chapters[0].Label = strings.Repeat("長", 40)

	var buf bytes.Buffer
	writeChapterTable(&buf, chapters, idx, "text/ch03.xhtml#spouter")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "…", "wide labels are truncated")
	assert.Contains(t, lines[1], "♪")
	assert.NotContains(t, lines[0], "♪")
	assert.True(t, strings.HasPrefix(lines[2], "›"))
}

func TestBatchReport(t *testing.T) {
	assert.Empty(t, batchReport(job.Summary{}))

	report := batchReport(job.Summary{
		JobID: "x", Chapters: 10, Recorded: 8, Skipped: 2,
		PartsWritten: 12, PartsFailed: 1, Bytes: 3_500_000, Cancelled: true,
	})
	assert.Equal(t, "Recorded 8 of 10 chapters (2 skipped): 12 parts, 3.5 MB, 1 part failed, stopped early", report)
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	p := printProgress(&buf)
	p(job.Progress{Label: "Loomings", Percent: 33.3, Detail: "Segment 1/3"})
	p(job.Progress{Label: "Done", Percent: 100, Completed: true})
	p(job.Progress{Percent: 50, Cancelled: true})

	assert.Equal(t, "[ 33%] Loomings: Segment 1/3\n[ 50%] cancelled\n", buf.String())
}

func TestEnsureConfigFileRejectsExtension(t *testing.T) {
	old := configFile
	t.Cleanup(func() { configFile = old })

	configFile = filepath.Join(t.TempDir(), "narrator.toml")
	assert.ErrorContains(t, ensureConfigFile(), "not a supported configuration type")

	configFile = filepath.Join(t.TempDir(), "narrator.yml")
	require.NoError(t, ensureConfigFile())
	assert.FileExists(t, configFile)
}

func TestRecordAllChapters(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("ID3 audio"))
	}))
	defer server.Close()

	dir := t.TempDir()
	bookPath := filepath.Join(dir, "book.md")
	require.NoError(t, os.WriteFile(bookPath, []byte(`# One

The first chapter has enough words to be recorded.

# Two

The second chapter also has enough words to be recorded.
`), 0o644))

	oldCfg, oldFlags := cfg, recordFlags
	t.Cleanup(func() { cfg, recordFlags = oldCfg, oldFlags })

	cfg = config.Default()
	cfg.Library.Path = filepath.Join(dir, "library.db")
	cfg.Artifacts.Dir = filepath.Join(dir, "audio")
	cfg.Synthesis.BaseURL = server.URL
	recordFlags.all = true
	recordFlags.noTUI = true
	recordFlags.apiKey = "sk-test"

	var out bytes.Buffer
	recordCmd.SetOut(&out)
	recordCmd.SetErr(&out)
	recordCmd.SetContext(context.Background())
	require.NoError(t, runRecord(recordCmd, []string{bookPath}))

	assert.Equal(t, int32(2), hits.Load())
	assert.Contains(t, out.String(), "Recorded 2 of 2 chapters")

	// With the synthesis cache on, a re-run rewrites the files without
	// calling the service for text it has already seen.
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	require.NoError(t, runRecord(recordCmd, []string{bookPath}))
	assert.Equal(t, int32(4), hits.Load(), "first cached run fills the cache")
	require.NoError(t, runRecord(recordCmd, []string{bookPath}))
	assert.Equal(t, int32(4), hits.Load(), "second cached run is served locally")

	store, err := library.Open(context.Background(), cfg.Library.Path)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	rec, err := store.GetBook(context.Background(), bookPath)
	require.NoError(t, err)
	require.Len(t, rec.AudioChapters, 2)
	for _, e := range rec.AudioChapters {
		for _, p := range e.Paths {
			assert.FileExists(t, p)
		}
	}
}

func TestRecordRequiresKey(t *testing.T) {
	oldCfg, oldEnv, oldFlags := cfg, environ, recordFlags
	t.Cleanup(func() { cfg, environ, recordFlags = oldCfg, oldEnv, oldFlags })

	cfg = config.Default()
	environ = config.Env{}
	recordFlags.apiKey = ""

	recordCmd.SetContext(context.Background())
	assert.ErrorIs(t, runRecord(recordCmd, []string{"whatever.md"}), errMissingKey)
}
