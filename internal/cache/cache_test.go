package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/narrator/internal/synth"
)

func newCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKey(t *testing.T) {
	k := Key("tts-1", "mp3", "alloy", "Hello.")
	assert.Len(t, k, 32)
	assert.Equal(t, k, Key("tts-1", "mp3", "alloy", "Hello."))
	assert.NotEqual(t, k, Key("tts-1", "mp3", "nova", "Hello."))
	assert.NotEqual(t, k, Key("tts-1-hd", "mp3", "alloy", "Hello."))
	assert.NotEqual(t, Key("a", "b", "c", "d"), Key("a", "b", "cd", ""), "fields are delimited")
}

func TestMemoryLRU(t *testing.T) {
	m := newMemoryCache(10)
	require.NoError(t, m.put("a", []byte("aaaa")))
	require.NoError(t, m.put("b", []byte("bbbb")))

	_, ok := m.get("a") // a is now most recent
	require.True(t, ok)

	require.NoError(t, m.put("c", []byte("cccc")))
	_, ok = m.get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = m.get("a")
	assert.True(t, ok)

	assert.ErrorIs(t, m.put("big", make([]byte, 11)), ErrItemTooLarge)

	s := m.Stats()
	assert.Equal(t, int64(8), s.Size)
	assert.Equal(t, int64(1), s.Evictions)
}

func TestCacheDiskPromotionAndReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)

	c, err := New(cfg)
	require.NoError(t, err)

	audio := bytes.Repeat([]byte("ID3 frame "), 500) // compressible
	require.NoError(t, c.Put("k", audio))

	got, level, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, LevelMemory, level)
	assert.Equal(t, audio, got)
	require.NoError(t, c.Close())

	info, err := os.Stat(filepath.Join(dir, "k.cache"))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(audio)), "stored compressed")

	// A fresh cache only has the disk level.
	c = newCache(t, cfg)
	got, level, ok = c.Get("k")
	require.True(t, ok)
	assert.Equal(t, LevelDisk, level)
	assert.Equal(t, audio, got)

	_, level, ok = c.Get("k")
	require.True(t, ok)
	assert.Equal(t, LevelMemory, level, "disk hits are promoted")
}

func TestCacheDiskEviction(t *testing.T) {
	c := newCache(t, Config{Dir: t.TempDir(), MemoryBytes: 1, DiskBytes: 10})

	require.NoError(t, c.Put("a", []byte("aaaaaa")))
	require.NoError(t, c.Put("b", []byte("bbbbbb")))

	_, _, ok := c.Get("a")
	assert.False(t, ok)
	_, _, ok = c.Get("b")
	assert.True(t, ok)

	assert.ErrorIs(t, c.Put("huge", make([]byte, 11)), ErrItemTooLarge)

	_, disk := c.Stats()
	assert.Equal(t, int64(1), disk.Evictions)
	assert.Equal(t, int64(1), disk.Items)
}

func TestCacheCorruptFileIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c := newCache(t, Config{Dir: dir, MemoryBytes: 1, DiskBytes: 1 << 20, CompressionLevel: 3})

	audio := bytes.Repeat([]byte("x"), 4096)
	require.NoError(t, c.Put("k", audio))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.cache"), []byte("garbage"), 0o644))

	_, _, ok := c.Get("k")
	assert.False(t, ok)
	_, _, ok = c.Get("k")
	assert.False(t, ok, "corrupt entry dropped from the index")
}

func TestCacheClosed(t *testing.T) {
	c, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Put("k", []byte("v")), ErrClosed)
	_, _, ok := c.Get("k")
	assert.False(t, ok)
}

func TestClientServesRepeatsFromCache(t *testing.T) {
	c := newCache(t, DefaultConfig(t.TempDir()))
	inner := synth.NewMock()
	client := NewClient(inner, c, "tts-1", "mp3", nil)
	ctx := context.Background()

	first, err := client.Synthesize(ctx, "Call me Ishmael.", "alloy", "key")
	require.NoError(t, err)
	second, err := client.Synthesize(ctx, "Call me Ishmael.", "alloy", "key")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.CallCount())

	_, err = client.Synthesize(ctx, "Call me Ishmael.", "nova", "key")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.CallCount(), "voice is part of the key")
}

func TestClientDoesNotCacheErrors(t *testing.T) {
	c := newCache(t, DefaultConfig(t.TempDir()))
	boom := errors.New("quota exceeded")
	inner := synth.FailOn(boom, 1)
	client := NewClient(inner, c, "tts-1", "mp3", nil)
	ctx := context.Background()

	_, err := client.Synthesize(ctx, "Hello.", "alloy", "key")
	require.ErrorIs(t, err, boom)

	_, err = client.Synthesize(ctx, "Hello.", "alloy", "key")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.CallCount())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = client.Synthesize(cancelled, "Hello.", "alloy", "key")
	assert.ErrorIs(t, err, context.Canceled)
}
