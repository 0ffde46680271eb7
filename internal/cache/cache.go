package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry wraps a cached value with its lifetime bookkeeping
type entry[V any] struct {
	value       V
	createdAt   time.Time
	ttl         time.Duration
	accessCount int64
	lastAccess  time.Time
}

// expired reports whether the entry's TTL has elapsed
func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// Stats is a point-in-time snapshot of one namespace
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Cache is one TTL+LRU namespace. The zero value is not usable; construct
// with NewCache.
type Cache[V any] struct {
	mu         sync.RWMutex
	lru        *lru.Cache[string, *entry[V]]
	capacity   int
	defaultTTL time.Duration
	hits       uint64
	misses     uint64

	// now is replaceable in tests
	now func() time.Time
}

// NewCache creates a namespace with the given capacity and default TTL
func NewCache[V any](capacity int, defaultTTL time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1024
	}
	inner, err := lru.New[string, *entry[V]](capacity)
	if err != nil {
		// Unreachable with a positive capacity
		panic(err)
	}
	return &Cache[V]{
		lru:        inner,
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached value for key, or a miss. Expired entries are
// removed and reported as misses. Get updates recency and hit counters, so
// it takes the write lock.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	if ent.expired(now) {
		c.lru.Remove(key)
		c.misses++
		return zero, false
	}

	ent.accessCount++
	ent.lastAccess = now
	c.hits++
	return ent.value, true
}

// Put stores a value with the namespace's default TTL
func (c *Cache[V]) Put(key string, value V) {
	c.PutTTL(key, value, c.defaultTTL)
}

// PutTTL stores a value with an explicit TTL. When the write would exceed
// capacity, expired entries are purged first; only then does LRU order
// decide what else to evict.
func (c *Cache[V]) PutTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.lru.Len() >= c.capacity && !c.lru.Contains(key) {
		c.purgeExpired(now)
	}

	c.lru.Add(key, &entry[V]{
		value:      value,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	})
}

// purgeExpired removes entries past TTL. Caller holds the write lock.
func (c *Cache[V]) purgeExpired(now time.Time) {
	for _, key := range c.lru.Keys() {
		if ent, ok := c.lru.Peek(key); ok && ent.expired(now) {
			c.lru.Remove(key)
		}
	}
}

// Invalidate removes a single key
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear empties the namespace, keeping hit/miss counters
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns a snapshot of the namespace counters
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:   c.hits,
		Misses: c.misses,
		Size:   c.lru.Len(),
	}
}

// Key derives a stable cache key from the semantically relevant parameters
// of a request. Two logically identical requests collide to the same entry
// regardless of the caller.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
