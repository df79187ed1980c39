package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/source"
)

// Fetcher retrieves a source table.
type Fetcher interface {
	Fetch(ctx context.Context, name, location string) (source.Table, error)
}

// CachedFetcher wraps a Fetcher with an in-memory LRU cache keyed by
// location. Entries expire after ttl, measured on the domain clock.
type CachedFetcher struct {
	inner Fetcher
	ttl   time.Duration
	cache *lruCache
}

// NewCachedFetcher creates a cache decorator around a fetcher.
func NewCachedFetcher(inner Fetcher, ttl time.Duration, maxEntries int) *CachedFetcher {
	return &CachedFetcher{
		inner: inner,
		ttl:   ttl,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, name, location string) (source.Table, error) {
	now := domain.Now()
	if t, ok := c.cache.get(location, now); ok {
		return t, nil
	}
	t, err := c.inner.Fetch(ctx, name, location)
	if err != nil {
		return t, err
	}
	// Only cache non-empty tables so a truncated download is retried next run.
	if t.Len() > 0 {
		c.cache.put(location, t, now.Add(c.ttl))
	}
	return t, nil
}

// lruCache is a thread-safe LRU cache of source tables.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key     string
	value   source.Table
	expires time.Time
	prev    *entry
	next    *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string, now time.Time) (source.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return source.Table{}, false
	}
	if !now.Before(e.expires) {
		delete(c.entries, key)
		c.remove(e)
		return source.Table{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value source.Table, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
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
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
