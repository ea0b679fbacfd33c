package linematch

import (
	"sync"
	"sync/atomic"
)

// DefaultCacheCapacity is the default bound on cached query results.
const DefaultCacheCapacity = 10000

// ResultCache is a bounded LRU cache mapping query strings to lookup
// results. Entries are tagged with the index generation that produced them;
// an entry whose generation no longer matches is treated as a miss, so a
// reload invalidates the whole cache without sweeping it.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*resultEntry
	head     *resultEntry // most recently used
	tail     *resultEntry // least recently used
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

type resultEntry struct {
	query      string
	found      bool
	generation uint64
	prev, next *resultEntry
}

// NewResultCache creates a cache bounded at capacity entries.
func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &ResultCache{
		entries:  make(map[string]*resultEntry, capacity),
		capacity: capacity,
	}
}

// Get returns the cached result for query if a live entry exists for this
// exact generation. Stale-generation entries count as misses and are left
// in place for LRU pressure to evict.
func (c *ResultCache) Get(generation uint64, query string) (result, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.entries[query]
	if !exists || entry.generation != generation {
		c.misses.Add(1)
		return false, false
	}
	c.hits.Add(1)
	c.moveToFront(entry)
	return entry.found, true
}

// Put inserts or overwrites the result for query at the given generation,
// evicting the least-recently-used entry when the cache is full.
func (c *ResultCache) Put(generation uint64, query string, result bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.entries[query]; exists {
		entry.found = result
		entry.generation = generation
		c.moveToFront(entry)
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	entry := &resultEntry{query: query, found: result, generation: generation}
	c.entries[query] = entry
	c.addToFront(entry)
}

// Clear drops every entry. Hit/miss counters survive.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*resultEntry, c.capacity)
	c.head = nil
	c.tail = nil
}

// Len returns the current entry count.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats holds cache performance counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// HitRate returns hits over total lookups, 0 when the cache is untouched.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a point-in-time view of the cache counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}

func (c *ResultCache) moveToFront(entry *resultEntry) {
	if entry == c.head {
		return
	}
	c.removeFromList(entry)
	c.addToFront(entry)
}

func (c *ResultCache) addToFront(entry *resultEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

func (c *ResultCache) removeFromList(entry *resultEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
}

func (c *ResultCache) evictOldest() {
	victim := c.tail
	if victim == nil {
		return
	}
	c.removeFromList(victim)
	delete(c.entries, victim.query)
}
