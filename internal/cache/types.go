package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache is closed")
)

// Level identifies where a hit was served from.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters for one level.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config sizes a Cache.
type Config struct {
	Dir              string
	MemoryBytes      int64
	DiskBytes        int64
	CompressionLevel int // zstd level; 0 stores raw bytes
}

// DefaultConfig returns a cache rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		MemoryBytes:      64 << 20,
		DiskBytes:        512 << 20,
		CompressionLevel: 3,
	}
}

// Key derives the cache key for one synthesis request. Every input that
// changes the audio is part of the key.
func Key(model, format, voice, text string) string {
	h := sha256.Sum256([]byte(strings.Join([]string{model, format, voice, text}, "\x00")))
	return hex.EncodeToString(h[:16])
}
