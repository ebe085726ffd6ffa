// Package cache provides a TTL-bounded lookaside cache for knowledge
// entries. It is never the source of truth; dropping every record loses
// nothing but latency.
package cache

import (
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/docfold/memoria/pkg/knowledge"
)

// Loader fetches the authoritative value for a key on Refresh.
type Loader interface {
	Load(key string) (knowledge.MemoryEntry, bool)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(key string) (knowledge.MemoryEntry, bool)

// Load calls f.
func (f LoaderFunc) Load(key string) (knowledge.MemoryEntry, bool) {
	return f(key)
}

// Stats reports cache health. Rates are fractions of all lookups since
// the cache was created.
type Stats struct {
	TotalEntries int           `json:"totalEntries"`
	TotalSize    int           `json:"totalSize"`
	HitRate      float64       `json:"hitRate"`
	MissRate     float64       `json:"missRate"`
	AverageAge   time.Duration `json:"averageAge"`
}

type record struct {
	key       string
	entry     knowledge.MemoryEntry
	size      int
	createdAt time.Time
	expiresAt time.Time
}

// Cache maps opaque keys to entry snapshots with per-record expiry.
// Expired records are evicted lazily on lookup.
type Cache struct {
	mu         sync.Mutex
	records    map[string]*record
	defaultTTL time.Duration
	loader     Loader
	hits       uint64
	misses     uint64
}

// Options configures a Cache. Loader is optional; without one Refresh
// always misses.
type Options struct {
	DefaultTTL time.Duration
	Loader     Loader
}

// New creates an empty cache. DefaultTTL <= 0 falls back to one hour.
func New(opts Options) *Cache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	return &Cache{
		records:    make(map[string]*record),
		defaultTTL: opts.DefaultTTL,
		loader:     opts.Loader,
	}
}

// Set stores the entry under key. A non-positive ttl uses the configured
// default. The record size is the JSON-serialized entry size captured now.
func (c *Cache) Set(key string, entry knowledge.MemoryEntry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	size := 0
	if data, err := json.Marshal(entry); err == nil {
		size = len(data)
	}

	now := time.Now()
	c.mu.Lock()
	c.records[key] = &record{
		key:       key,
		entry:     entry.Clone(),
		size:      size,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
}

// Get returns the cached entry when present and unexpired. Expired records
// are removed on the way out and count as misses.
func (c *Cache) Get(key string) (knowledge.MemoryEntry, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key]
	if !ok {
		c.misses++
		return knowledge.MemoryEntry{}, false
	}
	if now.After(rec.expiresAt) {
		delete(c.records, key)
		c.misses++
		return knowledge.MemoryEntry{}, false
	}

	c.hits++
	return rec.entry.Clone(), true
}

// Invalidate removes the record for key; false when absent.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[key]; !ok {
		return false
	}
	delete(c.records, key)
	return true
}

// InvalidatePattern removes every record whose key matches the regular
// expression and returns how many were removed.
func (c *Cache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.records {
		if re.MatchString(key) {
			delete(c.records, key)
			removed++
		}
	}
	return removed, nil
}

// Refresh reloads key through the loader and re-caches the result with the
// default TTL. Without a loader, or when the loader misses, it returns
// false and leaves any stale record in place.
func (c *Cache) Refresh(key string) (knowledge.MemoryEntry, bool) {
	if c.loader == nil {
		return knowledge.MemoryEntry{}, false
	}
	entry, ok := c.loader.Load(key)
	if !ok {
		return knowledge.MemoryEntry{}, false
	}
	c.Set(key, entry, 0)
	return entry, true
}

// Stats summarizes resident records and lifetime lookup counters. Lazy
// expiry means records past their TTL still count until a lookup evicts
// them.
func (c *Cache) Stats() Stats {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{TotalEntries: len(c.records)}
	var ageSum time.Duration
	for _, rec := range c.records {
		stats.TotalSize += rec.size
		ageSum += now.Sub(rec.createdAt)
	}
	if len(c.records) > 0 {
		stats.AverageAge = ageSum / time.Duration(len(c.records))
	}

	lookups := c.hits + c.misses
	if lookups > 0 {
		stats.HitRate = float64(c.hits) / float64(lookups)
		stats.MissRate = float64(c.misses) / float64(lookups)
	}
	return stats
}
