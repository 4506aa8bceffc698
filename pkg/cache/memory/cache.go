// Package memory implements the in-process response caches.
//
// A Cache is bounded by both a TTL and a max entry count. Eviction removes
// expired entries first, then the oldest-inserted entries until the cache
// is back under its bound. Entries live for the process only; nothing is
// persisted.
package memory

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/glyph-ai/glyph/pkg/apierror"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

// Stats reports monotonically increasing cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Entries   int64 `json:"entries"`
	Evictions int64 `json:"evictions"`
}

// Cache is a size- and time-bounded key/value store safe for concurrent
// use. A single mutex is fine at this scale (a few hundred entries); the
// lock is never held across I/O.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]

	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache with the given default TTL and entry bound.
func New[K comparable, V any](ttl time.Duration, maxEntries int) (*Cache[K, V], error) {
	if ttl <= 0 {
		return nil, apierror.New(apierror.KindConfiguration, "cache ttl must be positive, got %v", ttl)
	}
	if maxEntries <= 0 {
		return nil, apierror.New(apierror.KindConfiguration, "cache max_entries must be positive, got %d", maxEntries)
	}
	return &Cache[K, V]{
		entries:    make(map[K]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}, nil
}

// Get returns the value for key if present and not expired. An expired
// entry counts as a miss and is removed lazily.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		c.misses.Inc()
		return zero, false
	}
	if e.expired(now) {
		c.mu.Lock()
		// Recheck: another writer may have replaced the entry.
		if cur, still := c.entries[key]; still && cur.expired(c.now()) {
			delete(c.entries, key)
			c.evictions.Inc()
		}
		c.mu.Unlock()
		c.misses.Inc()
		return zero, false
	}

	c.hits.Inc()
	return e.value, true
}

// Put inserts or overwrites key, then runs an eviction pass: expired
// entries go first, then oldest-inserted entries until the cache is
// within its bound.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry[V]{value: value, insertedAt: now, ttl: c.ttl}

	if len(c.entries) <= c.maxEntries {
		return
	}

	for k, e := range c.entries {
		if k != key && e.expired(now) {
			delete(c.entries, k)
			c.evictions.Inc()
		}
	}

	for len(c.entries) > c.maxEntries {
		var oldestKey K
		var oldestAt time.Time
		first := true
		for k, e := range c.entries {
			if k == key {
				continue
			}
			if first || e.insertedAt.Before(oldestAt) {
				oldestKey, oldestAt = k, e.insertedAt
				first = false
			}
		}
		if first {
			return // only the fresh entry remains
		}
		delete(c.entries, oldestKey)
		c.evictions.Inc()
	}
}

// Remove deletes key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops all entries without touching the counters.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len returns the current entry count, expired entries included.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Entries:   int64(c.Len()),
		Evictions: c.evictions.Load(),
	}
}
