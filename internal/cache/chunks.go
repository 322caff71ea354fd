// Package cache provides a bounded in-memory cache of decoded chunk
// buffers for the chunked archive backend.
package cache

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/reparc/reparc/pkg/types"
)

// Metrics holds cache statistics for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	Entries   atomic.Int64
	SizeBytes atomic.Int64
}

// ChunkCache keeps recently decoded chunk buffers so repeated partial
// reads of the same region skip the read-verify-decompress-decode path.
// Eviction is LRU by total buffer bytes.
type ChunkCache struct {
	mu       sync.Mutex
	maxBytes int64
	metrics  Metrics
	entries  map[string]*list.Element // chunk key → LRU element
	lru      *list.List               // front = most recent
}

type cacheEntry struct {
	key  string
	buf  types.Buffer
	size int64
}

// NewChunkCache creates a chunk cache bounded to maxBytes of buffer data.
func NewChunkCache(maxBytes int64) (*ChunkCache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", maxBytes)
	}
	return &ChunkCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}, nil
}

// Get retrieves a cached buffer by chunk key.
func (c *ChunkCache) Get(key string) (types.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.metrics.Misses.Add(1)
		return types.Buffer{}, false
	}
	c.lru.MoveToFront(elem)
	c.metrics.Hits.Add(1)
	return elem.Value.(*cacheEntry).buf, true
}

// Put stores a decoded buffer under a chunk key, evicting least
// recently used entries as needed. Buffers larger than the cache
// itself are not stored.
func (c *ChunkCache) Put(key string, buf types.Buffer) {
	size := bufferSize(buf)
	if size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		c.metrics.SizeBytes.Add(size - entry.size)
		entry.buf = buf
		entry.size = size
		c.lru.MoveToFront(elem)
	} else {
		elem := c.lru.PushFront(&cacheEntry{key: key, buf: buf, size: size})
		c.entries[key] = elem
		c.metrics.Entries.Add(1)
		c.metrics.SizeBytes.Add(size)
	}

	for c.metrics.SizeBytes.Load() > c.maxBytes {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.metrics.Evictions.Add(1)
	}
}

// InvalidatePrefix drops every entry whose key starts with prefix.
// The chunked backend invalidates an array's chunks on delete and the
// whole cache on compaction, keying chunks as "<locator>/<chunk>".
func (c *ChunkCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
		}
	}
}

func (c *ChunkCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.key)
	c.metrics.Entries.Add(-1)
	c.metrics.SizeBytes.Add(-entry.size)
}

// Metrics returns current cache counters.
func (c *ChunkCache) Metrics() (hits, misses, evictions, entries, size int64) {
	return c.metrics.Hits.Load(), c.metrics.Misses.Load(), c.metrics.Evictions.Load(),
		c.metrics.Entries.Load(), c.metrics.SizeBytes.Load()
}

// HitRate returns the cache hit rate as a percentage.
func (c *ChunkCache) HitRate() float64 {
	hits := c.metrics.Hits.Load()
	misses := c.metrics.Misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// bufferSize estimates the in-memory size of a buffer in bytes.
func bufferSize(b types.Buffer) int64 {
	switch b.DType {
	case types.DTypeInteger:
		return int64(len(b.Ints)) * 8
	case types.DTypeFloating:
		return int64(len(b.Floats)) * 8
	case types.DTypeString:
		size := int64(0)
		for _, s := range b.Strings {
			size += int64(len(s)) + 16
		}
		return size
	}
	return 0
}
