// Package cache provides a small in-memory TTL map used for cross-call
// deduplication, such as the user key manager's encrypted-master-secret
// record and the attested TEE public key.
package cache

import (
	"sync"
	"time"
)

// entry pairs a cached value with its expiry. A nil expiry means the
// entry is permanent for the life of the process.
type entry struct {
	value  interface{}
	expiry *time.Time
}

// TTLCache is a single-writer, many-reader in-memory cache. A single
// mutex is enough: concurrent handler invocations only ever
// read-through or overwrite with an equivalent value.
type TTLCache struct {
	mu   sync.Mutex
	data map[string]entry
}

// New creates an empty cache.
func New() *TTLCache {
	return &TTLCache{data: make(map[string]entry)}
}

// Set stores value under key. If ttl is zero the entry never expires.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		exp = &t
	}
	c.data[key] = entry{value: value, expiry: exp}
}

// Get returns the cached value for key, or ok=false if absent or expired.
// An expired entry is evicted as a side effect of the lookup.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if e.expiry != nil && time.Now().After(*e.expiry) {
		delete(c.data, key)
		return nil, false
	}
	return e.value, true
}

// Delete removes key, if present.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear empties the cache.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
}
