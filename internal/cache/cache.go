package cache

import (
	"sync"
)

// Cache is a memory LRU in front of a disk store. Disk hits are promoted
// to memory.
type Cache struct {
	memory *memoryCache
	disk   *diskCache

	mu     sync.RWMutex
	closed bool
}

// New opens a cache under cfg.Dir, loading any entries already there.
func New(cfg Config) (*Cache, error) {
	disk, err := newDiskCache(cfg.Dir, cfg.DiskBytes, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &Cache{memory: newMemoryCache(cfg.MemoryBytes), disk: disk}, nil
}

// Get returns the value for key and the level that served it.
func (c *Cache) Get(key string) ([]byte, Level, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, 0, false
	}

	if data, ok := c.memory.get(key); ok {
		return data, LevelMemory, true
	}
	if data, ok := c.disk.get(key); ok {
		_ = c.memory.put(key, data)
		return data, LevelDisk, true
	}
	return nil, 0, false
}

// Put stores value at both levels. A value too large for memory is still
// kept on disk.
func (c *Cache) Put(key string, value []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	_ = c.memory.put(key, value)
	return c.disk.put(key, value)
}

// Stats returns per-level counters.
func (c *Cache) Stats() (memory, disk Stats) {
	return c.memory.Stats(), c.disk.Stats()
}

// Close persists the disk index. Further calls are no-ops.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.disk.close()
}
