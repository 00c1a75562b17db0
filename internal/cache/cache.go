package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxEntries = 4096

// MemoryCache is a size-bounded in-memory cache with per-entry TTL. Old
// entries are evicted LRU-first once the size cap is hit; expired entries
// are dropped lazily on read.
type MemoryCache struct {
	items *lru.Cache[string, entry]
	ttl   time.Duration
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// NewMemory creates a new in-memory cache with the specified default TTL.
func NewMemory(ttl time.Duration) *MemoryCache {
	items, _ := lru.New[string, entry](defaultMaxEntries)
	return &MemoryCache{
		items: items,
		ttl:   ttl,
	}
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	e, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.items.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *MemoryCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.items.Add(key, entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

func (c *MemoryCache) Delete(key string) {
	c.items.Remove(key)
}

func (c *MemoryCache) Clear() {
	c.items.Purge()
}

// Ensure MemoryCache implements Cache interface
var _ Cache = (*MemoryCache)(nil)
