// Package cache provides the injected read-through cache for reference
// feature extraction. A forge session consults it before calling the vision
// model, keyed by image identity, so re-forging against the same reference
// skips the most expensive call.
//
// The default capacity is 1: the common case is many sessions against the
// last-used reference, not a working set.
package cache

import (
	"container/list"
	"sync"

	"styleforge/internal/dna"
	"styleforge/internal/logging"
	"styleforge/internal/metrics"
)

// DefaultCapacity holds exactly the last-seen reference.
const DefaultCapacity = 1

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type entry struct {
	key         string
	dna         dna.DNA
	description string
}

// FeatureCache is a fixed-capacity LRU of extracted reference features.
// Safe for concurrent sessions.
type FeatureCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	entries  map[string]*list.Element
	stats    Stats
	metrics  *metrics.Metrics
}

// New creates a cache with the given capacity; non-positive selects
// DefaultCapacity.
func New(capacity int) *FeatureCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FeatureCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		metrics:  metrics.NewMetrics(),
	}
}

// Get returns the cached features for key, marking the entry most recent.
func (c *FeatureCache) Get(key string) (dna.DNA, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		c.metrics.CacheMisses.Inc()
		return dna.DNA{}, "", false
	}
	c.stats.Hits++
	c.metrics.CacheHits.Inc()
	c.order.MoveToFront(el)
	e := el.Value.(*entry)
	logging.Cache("hit for %.12s", key)
	return e.dna, e.description, true
}

// Put stores extracted features for key, evicting the least recently used
// entry when the cache is full.
func (c *FeatureCache) Put(key string, d dna.DNA, description string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.dna = d
		e.description = description
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
		c.stats.Evictions++
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, dna: d, description: description})
}

// Len returns the number of cached entries.
func (c *FeatureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a copy of the running counters.
func (c *FeatureCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	return s
}
