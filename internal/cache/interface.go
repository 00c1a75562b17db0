package cache

import "time"

// Cache is the storage backend for scrape outcomes and resolved avatar
// URLs. Implementations may round-trip values through JSON, so callers
// must not assume Get returns the concrete type passed to Set.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	SetWithTTL(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Clear()
}
