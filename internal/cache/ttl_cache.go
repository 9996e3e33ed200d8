package cache

import (
	"context"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

type ttlEntry struct {
	value     []byte
	expiresAt time.Time
}

// TTLCache is a fixed-capacity LRU whose entries also expire after a fixed
// TTL. Concurrent writers to one key simply overwrite each other.
type TTLCache struct {
	mu   sync.Mutex
	lru  *lru.Cache
	ttl  time.Duration
	now  func() time.Time
	hits int64
	miss int64
}

func NewTTLCache(capacity int, ttl time.Duration) *TTLCache {
	return &TTLCache{
		lru: lru.New(capacity),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *TTLCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.lru.Get(key)
	if !ok {
		c.miss++
		return nil, false
	}
	entry := raw.(ttlEntry)
	if !c.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		c.miss++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

func (c *TTLCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, ttlEntry{value: value, expiresAt: c.now().Add(c.ttl)})
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *TTLCache) Stats() map[string]any {
	entries := c.Len()

	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"entries": entries,
		"hits":    c.hits,
		"misses":  c.miss,
		"ttl":     c.ttl.String(),
	}
}
