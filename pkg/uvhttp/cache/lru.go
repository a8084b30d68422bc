// Package cache implements a generic, bounded, content-addressed LRU store
// with TTL expiry, used by the static file responder.
//
// The eviction list is built on container/list, the same structure
// github.com/hashicorp/golang-lru uses internally; golang-lru's stock
// Cache only bounds entry count, not byte budget + TTL + external
// staleness checks (mtime revalidation), so this package reimplements the
// list/map combination rather than wrapping it. See DESIGN.md.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is a single cached value alongside the bookkeeping the static file
// responder and conditional-GET logic need.
type Entry struct {
	Key          string
	Value        []byte
	ContentType  string
	LastModified time.Time
	ETag         string
	CachedAt     time.Time
	// StoredMTime is the modification time of the source the value was
	// captured from (e.g. a file's mtime); re-validated on every Get.
	StoredMTime time.Time
	Size        int64

	elem *list.Element
}

// StaleFunc, when non-nil, is consulted on every Get to decide whether a
// cache hit is actually stale (e.g. because the file's mtime on disk has
// changed since CachedAt). It receives the entry and returns true when the
// entry is stale, in which case Get removes it and reports a miss.
type StaleFunc func(e *Entry) bool

// Cache is a bounded, TTL-aware LRU keyed by string.
type Cache struct {
	mu         sync.Mutex
	maxBytes   int64
	maxEntries int
	ttl        time.Duration

	ll    *list.List // front = most recently used
	items map[string]*list.Element

	totalBytes int64

	hits, misses, evictions int64
}

// New constructs a Cache bounded by maxBytes total value size and
// maxEntries entry count (either may be 0 to mean unbounded), expiring
// entries older than ttl (0 means no TTL expiry).
func New(maxBytes int64, maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

// Get returns the entry for key if present, not expired, and (when stale is
// non-nil) not reported stale by stale. A hit moves the entry to the front
// of the LRU list.
func (c *Cache) Get(key string, stale StaleFunc) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := elem.Value.(*Entry)

	if c.ttl > 0 && time.Since(e.CachedAt) >= c.ttl {
		c.removeElement(elem)
		c.misses++
		c.evictions++
		return nil, false
	}
	if stale != nil && stale(e) {
		c.removeElement(elem)
		c.misses++
		c.evictions++
		return nil, false
	}

	c.ll.MoveToFront(elem)
	c.hits++
	return e, true
}

// Put inserts or replaces the entry for key, then evicts from the tail
// until both the byte and entry-count budgets are satisfied.
func (c *Cache) Put(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.CachedAt = time.Now()

	if elem, ok := c.items[e.Key]; ok {
		old := elem.Value.(*Entry)
		c.totalBytes -= old.Size
		elem.Value = e
		e.elem = elem
		c.totalBytes += e.Size
		c.ll.MoveToFront(elem)
	} else {
		e.elem = c.ll.PushFront(e)
		c.items[e.Key] = e.elem
		c.totalBytes += e.Size
	}

	c.evict()
}

// Remove deletes key from the cache if present.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// TotalBytes returns the current sum of entry sizes.
func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// Stats returns cumulative hit/miss/eviction counters.
func (c *Cache) Stats() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

// evict must be called with mu held.
func (c *Cache) evict() {
	for (c.maxBytes > 0 && c.totalBytes > c.maxBytes) ||
		(c.maxEntries > 0 && c.ll.Len() > c.maxEntries) {
		tail := c.ll.Back()
		if tail == nil {
			return
		}
		c.removeElement(tail)
		c.evictions++
	}
}

// removeElement must be called with mu held.
func (c *Cache) removeElement(elem *list.Element) {
	e := elem.Value.(*Entry)
	c.ll.Remove(elem)
	delete(c.items, e.Key)
	c.totalBytes -= e.Size
}
