package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// Ensure Cache implements the interface.
var _ driven.Cache = (*Cache)(nil)

// envelope is the stored form of a cache entry.
type envelope struct {
	WrittenAt time.Time     `json:"written_at"`
	TTL       time.Duration `json:"ttl_ns"`
	Payload   []byte        `json:"payload"`
}

// Cache is a driven.Cache backed by BadgerDB.
type Cache struct {
	db  *badger.DB
	gc  *gcRunner
	now func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens (or creates) the cache.
func Open(cfg Config) (*Cache, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	c := &Cache{db: db, now: cfg.Now}
	if c.now == nil {
		c.now = time.Now
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio)
	}
	initMetrics()
	return c, nil
}

// OpenFromSettings opens the cache in the configured data directory.
func OpenFromSettings(storage domain.StorageSettings, cache domain.CacheSettings) (*Cache, error) {
	cfg := DefaultConfig(storage.CacheDir())
	cfg.SyncWrites = cache.SyncWrites
	cfg.GCInterval = cache.GCInterval
	cfg.GCDiscardRatio = cache.GCDiscardRatio
	return Open(cfg)
}

func physicalKey(namespace, key string) []byte {
	return []byte(namespace + "/" + key)
}

// Get returns a live entry. Expired and corrupt entries read as misses;
// corrupt entries are also deleted.
func (c *Cache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	payload, err := c.get(namespace, key)
	switch {
	case err == nil:
		c.hits.Add(1)
		recordLookup(ctx, namespace, true)
		return payload, true
	case errors.Is(err, domain.ErrCacheCorrupt):
		logger.Warn("cache entry %s/%s is corrupt, treating as miss: %v", namespace, key, err)
		if derr := c.Delete(ctx, namespace, key); derr != nil {
			logger.Debug("delete corrupt cache entry %s/%s: %v", namespace, key, derr)
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		logger.Warn("cache read %s/%s failed, treating as miss: %v", namespace, key, err)
	}
	c.misses.Add(1)
	recordLookup(ctx, namespace, false)
	return nil, false
}

func (c *Cache) get(namespace, key string) ([]byte, error) {
	var env envelope
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(physicalKey(namespace, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &env); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if env.TTL > 0 && c.now().Sub(env.WrittenAt) > env.TTL {
		return nil, badger.ErrKeyNotFound
	}
	return env.Payload, nil
}

// Set stores a payload with a TTL. A zero TTL never expires.
func (c *Cache) Set(_ context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	data, err := json.Marshal(envelope{WrittenAt: c.now(), TTL: ttl, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(physicalKey(namespace, key), data)
		if ttl > 0 {
			// badger's own TTL only reclaims space; expiry is decided on read
			e = e.WithTTL(ttl + time.Hour)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes an entry.
func (c *Cache) Delete(_ context.Context, namespace, key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(physicalKey(namespace, key))
	})
}

// Clear removes every entry in a namespace.
func (c *Cache) Clear(_ context.Context, namespace string) error {
	return c.db.DropPrefix([]byte(namespace + "/"))
}

// putRaw writes bytes without an envelope. Tests use it to plant corrupt entries.
func (c *Cache) putRaw(namespace, key string, raw []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(physicalKey(namespace, key), raw)
	})
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() driven.CacheStats {
	return driven.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close stops GC and closes the database.
func (c *Cache) Close() error {
	if c.gc != nil {
		c.gc.stop()
	}
	return c.db.Close()
}
