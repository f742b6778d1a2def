package cache

import (
	"sync"
	"time"
)

// DefaultCountTTL is the per-entry lifetime of a cached collection count.
const DefaultCountTTL = 300 * time.Second

// CountCache is a small in-process TTL map from collection id to artifact
// count, used to avoid recomputing counts on every list view. It is
// independent of the database and owns its own mutex, which is never held
// across a call into another component.
//
// Construct one instance at process start and pass it where needed; there
// is deliberately no package-level singleton.
type CountCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]countEntry
}

type countEntry struct {
	count    int
	deadline time.Time
}

// CountCacheOption configures a CountCache.
type CountCacheOption func(*CountCache)

// WithCountTTL overrides the default 300s entry lifetime.
func WithCountTTL(ttl time.Duration) CountCacheOption {
	return func(c *CountCache) { c.ttl = ttl }
}

// WithCountClock overrides the time source for tests.
func WithCountClock(now func() time.Time) CountCacheOption {
	return func(c *CountCache) { c.now = now }
}

// NewCountCache creates an empty count cache.
func NewCountCache(opts ...CountCacheOption) *CountCache {
	c := &CountCache{
		ttl:     DefaultCountTTL,
		now:     time.Now,
		entries: make(map[string]countEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCounts looks up counts for the given ids. Expired entries are evicted
// during lookup and reported as misses alongside ids never cached.
func (c *CountCache) GetCounts(ids []string) (hits map[string]int, misses []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	hits = make(map[string]int)
	for _, id := range ids {
		e, ok := c.entries[id]
		if !ok {
			misses = append(misses, id)
			continue
		}
		if !e.deadline.After(now) {
			delete(c.entries, id)
			misses = append(misses, id)
			continue
		}
		hits[id] = e.count
	}
	return hits, misses
}

// SetCounts overwrites the given counts with a fresh deadline.
func (c *CountCache) SetCounts(counts map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(c.ttl)
	for id, n := range counts {
		c.entries[id] = countEntry{count: n, deadline: deadline}
	}
}

// Invalidate drops one id. Unknown ids are a no-op.
func (c *CountCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// InvalidateAll drops every entry.
func (c *CountCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]countEntry)
}

// CountStats reports cache size and configuration.
type CountStats struct {
	Size int
	TTL  time.Duration
}

// Stats returns the current size and configured TTL.
func (c *CountCache) Stats() CountStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountStats{Size: len(c.entries), TTL: c.ttl}
}
