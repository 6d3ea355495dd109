// Package cache keeps recent processing results in memory so an identical
// upload under the same policy is not processed twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/golang/groupcache/lru"
)

// Cache is a bounded LRU map. A nil *Cache or one built with zero entries
// stores nothing.
type Cache[V any] struct {
	mu    sync.Mutex
	inner *lru.Cache
	hits  uint64
	miss  uint64
}

func New[V any](entries int) *Cache[V] {
	if entries <= 0 {
		return nil
	}
	return &Cache[V]{inner: lru.New(entries)}
}

// Key identifies an upload: its bytes plus the fingerprint of the policy it
// is processed under.
func Key(data []byte, fingerprint string) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.inner.Get(key)
	if !ok {
		c.miss++
		return zero, false
	}
	c.hits++
	return val.(V), true
}

func (c *Cache[V]) Add(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, value)
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Counters returns hits and misses since the cache was built.
func (c *Cache[V]) Counters() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.miss
}
