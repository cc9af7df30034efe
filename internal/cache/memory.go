package cache

import (
	"container/list"
	"sync"
)

// memoryCache is a size-bounded LRU.
type memoryCache struct {
	capacity int64
	size     int64

	items    map[string]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats
}

type memoryEntry struct {
	key   string
	value []byte
}

func newMemoryCache(capacity int64) *memoryCache {
	return &memoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		stats:    Stats{Capacity: capacity},
	}
}

func (c *memoryCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*memoryEntry).value, true
}

func (c *memoryCache) put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	valueSize := int64(len(value))
	if valueSize > c.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		c.size += valueSize - int64(len(entry.value))
		entry.value = value
	} else {
		c.items[key] = c.eviction.PushFront(&memoryEntry{key: key, value: value})
		c.size += valueSize
	}

	for c.size > c.capacity && c.eviction.Len() > 1 {
		c.evictOldest()
	}
	return nil
}

func (c *memoryCache) evictOldest() {
	elem := c.eviction.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*memoryEntry)
	c.eviction.Remove(elem)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.value))
	c.stats.Evictions++
}

func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.size
	s.Items = int64(len(c.items))
	return s
}
