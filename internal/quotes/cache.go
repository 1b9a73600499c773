package quotes

import (
	"sync"
	"time"

	"github.com/quantrail/optionsfeed/internal/observ"
)

// cacheEntry pairs a record with its insertion time. Entries are never
// swept in the background; a read past its TTL simply treats it as absent.
type cacheEntry struct {
	record     Record
	insertedAt time.Time
}

// Cache is a process-wide TTL cache keyed by "EXCHANGE:SYMBOL" (prefixed
// by fetch mode so LTP-shaped and quote-shaped records never mix). The TTL
// is supplied per call so a single cache serves callers with different
// freshness needs; ttl <= 0 disables caching for that call entirely.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

// CacheMeta is a point-in-time observability snapshot.
type CacheMeta struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached record for key if it is younger than ttl.
func (c *Cache) Get(key string, ttl time.Duration) (Record, bool) {
	if ttl <= 0 {
		c.recordMiss()
		return Record{}, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Since(e.insertedAt) > ttl {
		c.recordMiss()
		return Record{}, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	observ.IncCounter("quote_cache_hits_total", nil)
	return e.record, true
}

// Put stores a batch of records. Entries with empty keys are skipped
// silently. A no-op when ttl <= 0.
func (c *Cache) Put(batch map[string]Record, ttl time.Duration) {
	if ttl <= 0 || len(batch) == 0 {
		return
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, rec := range batch {
		if key == "" {
			continue
		}
		c.entries[key] = cacheEntry{record: rec, insertedAt: now}
	}
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	observ.IncCounter("quote_cache_misses_total", nil)
}

// SnapshotMeta returns size and monotonic hit/miss counters.
func (c *Cache) SnapshotMeta() CacheMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheMeta{Size: len(c.entries), Hits: c.hits, Misses: c.misses}
}
