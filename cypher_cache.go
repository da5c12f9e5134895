package colgraph

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Statement cache: avoids re-parsing identical statement text.
//
// The cache is a bounded LRU keyed by statement text. When the cache is full,
// the least-recently-used entry is evicted. Cached ASTs are never mutated, so
// one entry can back any number of concurrent executions. Binding against the
// catalog happens per Prepare because tables created later can change how an
// unlabeled relationship resolves.
// ---------------------------------------------------------------------------

// CacheStats holds statement cache statistics for observability.
type CacheStats struct {
	Entries  int    `json:"entries"`  // current number of cached ASTs
	Capacity int    `json:"capacity"` // max entries before eviction
	Hits     uint64 `json:"hits"`     // total cache hits
	Misses   uint64 `json:"misses"`   // total cache misses
}

const defaultQueryCacheCapacity = 10_000

// queryCache is a bounded LRU cache keyed by statement text.
type queryCache struct {
	mu       sync.Mutex
	items    map[string]*queryCacheEntry
	head     *queryCacheEntry // most recently used
	tail     *queryCacheEntry // least recently used
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

type queryCacheEntry struct {
	key  string
	stmt Statement
	prev *queryCacheEntry
	next *queryCacheEntry
}

func newQueryCache(capacity int) *queryCache {
	if capacity <= 0 {
		capacity = defaultQueryCacheCapacity
	}
	return &queryCache{
		items:    make(map[string]*queryCacheEntry),
		capacity: capacity,
	}
}

// get returns the cached statement for the text, or nil if not cached.
func (c *queryCache) get(text string) Statement {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[text]
	if !ok {
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	c.moveToFront(entry)
	return entry.stmt
}

// put stores a statement in the cache, evicting the LRU entry if full.
func (c *queryCache) put(text string, stmt Statement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[text]; ok {
		entry.stmt = stmt
		c.moveToFront(entry)
		return
	}

	entry := &queryCacheEntry{key: text, stmt: stmt}
	c.items[text] = entry
	c.pushFront(entry)

	if len(c.items) > c.capacity {
		c.evictLRU()
	}
}

// stats returns current cache statistics.
func (c *queryCache) stats() CacheStats {
	c.mu.Lock()
	n := len(c.items)
	capacity := c.capacity
	c.mu.Unlock()
	return CacheStats{
		Entries:  n,
		Capacity: capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

func (c *queryCache) moveToFront(e *queryCacheEntry) {
	if c.head == e {
		return
	}
	c.removeEntry(e)
	c.pushFront(e)
}

func (c *queryCache) pushFront(e *queryCacheEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *queryCache) removeEntry(e *queryCacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *queryCache) evictLRU() {
	if c.tail == nil {
		return
	}
	victim := c.tail
	c.removeEntry(victim)
	delete(c.items, victim.key)
}

// parseCached returns the parsed statement for text, consulting the cache
// first. Scripts with several statements are not cached.
func (db *DB) parseCached(text string) (Statement, error) {
	if st := db.cache.get(text); st != nil {
		db.metrics.CacheHits.Add(1)
		return st, nil
	}
	db.metrics.CacheMisses.Add(1)
	st, err := parseStatement(text)
	if err != nil {
		return nil, err
	}
	db.cache.put(text, st)
	return st, nil
}

// QueryCacheStats returns statistics about the statement cache.
func (db *DB) QueryCacheStats() CacheStats {
	return db.cache.stats()
}
