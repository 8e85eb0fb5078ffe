package render

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LayerCache is a concurrent-safe LRU cache of styled layer documents with
// TTL expiration, keyed by (state, variable).
type LayerCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewLayerCache creates a LayerCache with the given capacity and TTL.
func NewLayerCache(maxEntries int, ttl time.Duration) *LayerCache {
	return &LayerCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

func layerKey(state, variable string) string {
	return strings.ToLower(state) + "/" + variable
}

// Get retrieves a cached styled document. Returns nil on miss or expiration.
func (c *LayerCache) Get(state, variable string) []byte {
	key := layerKey(state, variable)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil
	}

	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.data
}

// Put stores a styled document, evicting the oldest entry at capacity.
func (c *LayerCache) Put(state, variable string, data []byte) {
	key := layerKey(state, variable)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeFromOrder(key)
	} else if len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &cacheEntry{data: data, createdAt: time.Now()}
	c.order = append(c.order, key)
}

// Invalidate drops every cached document for a state. Used after a layer's
// underlying data is re-imported.
func (c *LayerCache) Invalidate(state string) int {
	prefix := strings.ToLower(state) + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			c.removeFromOrder(key)
			dropped++
		}
	}
	return dropped
}

// Stats returns a snapshot of cache statistics.
func (c *LayerCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
	}
}

func (c *LayerCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
