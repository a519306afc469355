package driven

import (
	"context"
	"time"
)

// Cache namespaces.
const (
	CacheNamespaceChunk      = "llm_chunk"
	CacheNamespaceDocument   = "llm_document"
	CacheNamespaceConversion = "conversion"
)

// Cache is a namespaced, TTL-bounded key/value store for expensive artifacts.
// Entries older than their TTL read as absent. Corrupt entries read as absent
// and are never reported as errors from Get.
type Cache interface {
	// Get returns the payload and true on a hit.
	Get(ctx context.Context, namespace, key string) ([]byte, bool)

	// Set stores a payload. Writes are last-write-wins.
	Set(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error

	// Delete removes an entry.
	Delete(ctx context.Context, namespace, key string) error

	// Clear removes every entry in a namespace.
	Clear(ctx context.Context, namespace string) error

	// Stats returns hit and miss counts since the cache was opened.
	Stats() CacheStats

	// Close releases resources.
	Close() error
}

// CacheStats counts lookups.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// HitRatio returns hits over lookups, zero if there were none.
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
