/**
 * @description
 * In-process result cache for the analytics endpoint. Entries are scoped by
 * the requesting identity so the same query by different users or roles never
 * collides, and a privilege change naturally invalidates the old role-scoped
 * entries through expiry.
 *
 * @notes
 * - Bounded: when the store exceeds capacity after a write, expired entries
 *   are dropped first, then the oldest live entries until the bound holds.
 * - Guarded by a mutex; the request runtime serves handlers concurrently and
 *   an unsynchronized map would be a data race under Go's memory model.
 * - Process-lifetime only. Entries vanish on restart, and each instance of a
 *   multi-instance deployment caches independently.
 */
package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/proptly/billing-service/internal/domain"
)

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultCacheCapacity = 1024
)

type cacheEntry struct {
	report   *domain.AnalyticsReport
	storedAt time.Time
}

// AnalyticsCache is a bounded TTL cache of computed analytics reports.
type AnalyticsCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]cacheEntry

	// now is swappable in tests.
	now func() time.Time
}

// NewAnalyticsCache creates a cache with the given TTL and capacity.
// Non-positive values fall back to the defaults (5 minutes, 1024 entries).
func NewAnalyticsCache(ttl time.Duration, capacity int) *AnalyticsCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &AnalyticsCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// CacheKey builds the composite cache key for an identity and a normalized
// query. The query's canonical JSON form keeps equivalent queries on one key.
func CacheKey(ident domain.Identity, q domain.AnalyticsQuery) string {
	serialized, err := json.Marshal(q)
	if err != nil {
		// A plain struct of strings and slices cannot fail to marshal.
		serialized = []byte(fmt.Sprintf("%+v", q))
	}
	return ScopePrefix(ident) + string(serialized)
}

// ScopePrefix is the key prefix owned by an identity. Non-admin invalidation
// is restricted to this prefix.
func ScopePrefix(ident domain.Identity) string {
	return ident.UserID + ":" + ident.Role + ":"
}

// Get returns the cached report for key if present and younger than the TTL.
func (c *AnalyticsCache) Get(key string) (*domain.AnalyticsReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.report, true
}

// Set stores a report under key, unconditionally overwriting, then enforces
// the TTL and capacity bounds.
func (c *AnalyticsCache) Set(key string, report *domain.AnalyticsReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = cacheEntry{report: report, storedAt: now}

	cutoff := now.Add(-c.ttl)
	for k, e := range c.entries {
		if !e.storedAt.After(cutoff) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) > c.capacity {
		oldestKey := ""
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// DeletePrefix removes every entry whose key starts with prefix and returns
// the number of entries removed.
func (c *AnalyticsCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry and returns the number removed.
func (c *AnalyticsCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	return removed
}

// Len returns the number of entries currently stored, expired or not.
func (c *AnalyticsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
