// Package segcache implements the §4.1 segment cache: a fixed-capacity,
// LRU-ordered map from segment index to an in-memory segment. It caches
// only sealed, read-only segments — there is no write-back path here, by
// design (§4.1).
package segcache

import "container/list"

// Cache is a bounded LRU keyed by segment index. V is typically
// *logstore.Segment; the type parameter keeps this package free of any
// dependency on the log layer, mirroring how the teacher's lrucache.Cache
// is agnostic to what it stores.
type Cache[V any] struct {
	capacity int
	order    *list.List // front = most recently used
	index    map[uint32]*list.Element
}

type entry[V any] struct {
	segment uint32
	value   V
}

// New creates a cache that holds at most capacity segments.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		panic("segcache: capacity must be positive")
	}
	return &Cache[V]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uint32]*list.Element),
	}
}

// Contains reports whether segment n is cached, without affecting LRU
// order.
func (c *Cache[V]) Contains(n uint32) bool {
	_, ok := c.index[n]
	return ok
}

// Get promotes n to most-recently-used and returns its value. The caller
// must have checked Contains(n) first; Get panics otherwise, since the
// spec (§4.1) defines it as a precondition rather than a lookup-or-miss
// call.
func (c *Cache[V]) Get(n uint32) V {
	el, ok := c.index[n]
	if !ok {
		panic("segcache: Get called for an uncached segment")
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[V]).value
}

// Put inserts seg's value for segment index n. n must not already be
// cached. If the cache is at capacity, the least-recently-used entry is
// evicted first.
func (c *Cache[V]) Put(n uint32, value V) {
	if c.Contains(n) {
		panic("segcache: Put called for an already-cached segment")
	}

	if len(c.index) >= c.capacity {
		c.evictOldest()
	}

	el := c.order.PushFront(&entry[V]{segment: n, value: value})
	c.index[n] = el
}

// Invalidate drops n from the cache if present; a no-op otherwise. Used
// whenever the cleaner erases a segment that happened to be cached.
func (c *Cache[V]) Invalidate(n uint32) {
	el, ok := c.index[n]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.index, n)
}

// Len reports the number of cached segments.
func (c *Cache[V]) Len() int { return len(c.index) }

func (c *Cache[V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry[V])
	c.order.Remove(oldest)
	delete(c.index, e.segment)
}
