package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the L1 cache: an in-process TTL map. Expired entries are
// invisible to Get and are purged by go-cache's janitor.
type MemoryCache struct {
	items *gocache.Cache
	ttl   time.Duration

	mu    sync.Mutex
	stats CacheStats
}

// NewMemoryCache creates a memory cache whose entries live for ttl.
// cleanupInterval controls how often expired entries are purged; zero
// disables the janitor.
func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		items: gocache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := c.items.Get(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LastAccess = time.Now()
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return v.([]byte), true
}

// Put stores a value with the default TTL.
func (c *MemoryCache) Put(key string, value []byte) error {
	return c.PutWithTTL(key, value, c.ttl)
}

// PutWithTTL stores a value that expires after ttl. Entries promoted from
// disk use this to keep their original expiry.
func (c *MemoryCache) PutWithTTL(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.items.Set(key, value, ttl)
	return nil
}

// Delete removes an entry.
func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Contains reports whether key holds an unexpired value.
func (c *MemoryCache) Contains(key string) bool {
	_, ok := c.items.Get(key)
	return ok
}

// Prune removes expired entries immediately.
func (c *MemoryCache) Prune() {
	c.items.DeleteExpired()
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() CacheStats {
	items := c.items.Items()

	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	stats.ItemCount = int64(len(items))
	stats.Size = 0
	for _, item := range items {
		if b, ok := item.Object.([]byte); ok {
			stats.Size += int64(len(b))
		}
	}
	stats.updateHitRate()
	return stats
}
