package memory

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.Cache = (*Cache)(nil)

type cacheEntry struct {
	payload   []byte
	writtenAt time.Time
	ttl       time.Duration
}

// Cache is an in-memory implementation of driven.Cache with lazy expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a new in-memory cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for expiry. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func cacheKey(namespace, key string) string {
	return namespace + "/" + key
}

// Get returns the payload if present and younger than its TTL.
func (c *Cache) Get(_ context.Context, namespace, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[cacheKey(namespace, key)]
	now := c.now()
	c.mu.RUnlock()

	if !ok || (e.ttl > 0 && now.Sub(e.writtenAt) > e.ttl) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true
}

// Set stores a copy of payload.
func (c *Cache) Set(_ context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(namespace, key)] = cacheEntry{payload: stored, writtenAt: c.now(), ttl: ttl}
	return nil
}

// Delete removes an entry.
func (c *Cache) Delete(_ context.Context, namespace, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(namespace, key))
	return nil
}

// Clear removes every entry in a namespace.
func (c *Cache) Clear(_ context.Context, namespace string) error {
	prefix := namespace + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() driven.CacheStats {
	return driven.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close is a no-op.
func (c *Cache) Close() error {
	return nil
}
