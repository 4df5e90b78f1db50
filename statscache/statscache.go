// Package statscache stores the most recent normalized record per posting.
// Writes are unconditional last-write-wins. Freshness is advisory and
// evaluated at read time against a TTL: stale entries are still returned so
// callers can decide whether to use them, fall back to broadcast history, or
// report a pending state. There is no background sweep and no capacity bound
// on the number of postings.
package statscache

import (
	"sync"
	"time"

	"github.com/evinjohnn/LinkedIn-Job-Stats/record"
)

// DefaultTTL is the freshness horizon for cached records.
const DefaultTTL = 5 * time.Minute

// Entry pairs a record with its insertion instant.
type Entry struct {
	Record     record.Record
	InsertedAt time.Time
}

// Cache is a thread-safe per-posting record cache.
type Cache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]Entry
	stats *Statistics // ALWAYS initialized
}

// New creates a cache with the given freshness TTL. Non-positive ttl uses
// DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:   ttl,
		items: make(map[string]Entry),
		stats: NewStatistics(),
	}
}

// TTL returns the freshness horizon.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Put stores rec for entityID as of now, overwriting any existing entry
// unconditionally. Records are never merged.
func (c *Cache) Put(entityID string, rec record.Record, now time.Time) {
	c.mu.Lock()
	c.items[entityID] = Entry{Record: rec, InsertedAt: now}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
}

// Get returns the entry for entityID regardless of freshness. Callers decide
// staleness via Fresh. A stale hit is still a hit.
func (c *Cache) Get(entityID string, now time.Time) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.items[entityID]
	c.mu.RUnlock()

	if !ok {
		c.stats.Miss()
		return Entry{}, false
	}

	c.stats.Hit()
	if !c.Fresh(entry, now) {
		c.stats.StaleHit()
	}
	return entry, true
}

// Fresh reports whether entry is within the TTL as of now. An entry aged
// exactly TTL is stale.
func (c *Cache) Fresh(entry Entry, now time.Time) bool {
	return now.Sub(entry.InsertedAt) < c.ttl
}

// Delete removes the entry for entityID, reporting whether one existed.
func (c *Cache) Delete(entityID string) bool {
	c.mu.Lock()
	_, ok := c.items[entityID]
	if ok {
		delete(c.items, entityID)
	}
	size := len(c.items)
	c.mu.Unlock()

	if ok {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
	}
	return ok
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]Entry)
	c.mu.Unlock()

	c.stats.UpdateSize(0)
}

// Size returns the number of postings currently cached.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the cached posting ids in no particular order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *Cache) Stats() *Statistics {
	return c.stats
}
