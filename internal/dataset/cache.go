package dataset

import (
	"sync"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
)

// lruCache is a thread-safe LRU cache of parsed datasets keyed by
// species code. Entries form a ring around a sentinel node: root.next
// is the most recently used, root.prev the least.
type lruCache struct {
	maxEntries int

	mu      sync.Mutex
	entries map[string]*entry
	root    entry
}

type entry struct {
	key   string
	value *domain.Dataset
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	c := &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
	c.root.prev = &c.root
	c.root.next = &c.root
	return c
}

func (c *lruCache) get(key string) (*domain.Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.touch(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *domain.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.touch(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		oldest := c.root.prev
		delete(c.entries, oldest.key)
		c.unlink(oldest)
	}
}

// drop removes a key, if present. Used by the invalidation feed.
func (c *lruCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.unlink(e)
}

// touch marks an entry as most recently used.
func (c *lruCache) touch(e *entry) {
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache) pushFront(e *entry) {
	e.prev = &c.root
	e.next = c.root.next
	e.prev.next = e
	e.next.prev = e
}

func (c *lruCache) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}
