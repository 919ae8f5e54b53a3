// Package cache is the process-local read cache in front of the catalog
// indexes. Entries expire independently per read class; the cache is never a
// system of record and starts empty on every process restart.
package cache

import (
	"sync"
	"time"
)

// Read classes with their TTLs.
type Class int

const (
	Movies Class = iota
	Categories
	Search
	Config
)

var ttls = map[Class]time.Duration{
	Movies:     3 * time.Minute,
	Categories: 5 * time.Minute,
	Search:     5 * time.Minute,
	Config:     10 * time.Minute,
}

// TTL returns the expiry window for a read class.
func TTL(c Class) time.Duration { return ttls[c] }

type entry struct {
	data      any
	fetchedAt time.Time
	class     Class
}

// Cache holds whole-result entries keyed by (class, key). Replacement is
// always whole-entry; partial updates never happen.
type Cache struct {
	mu      sync.RWMutex
	entries map[Class]map[string]entry
	now     func() time.Time
}

func New() *Cache {
	return NewWithClock(time.Now)
}

// NewWithClock injects the clock; used by tests.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[Class]map[string]entry),
		now:     now,
	}
}

// Get returns the cached value for (class, key) when it is still inside its
// TTL window.
func (c *Cache) Get(class Class, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[class][key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= ttls[class] {
		return nil, false
	}
	return e.data, true
}

// Put stores a fresh value for (class, key), stamping it with the current time.
func (c *Cache) Put(class Class, key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.entries[class]
	if !ok {
		m = make(map[string]entry)
		c.entries[class] = m
	}
	m[key] = entry{data: data, fetchedAt: c.now(), class: class}
}

// InvalidateClass drops every entry of one read class.
func (c *Cache) InvalidateClass(class Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, class)
}

// InvalidateListings drops the movie, category and search entries after a
// catalog mutation. Coarse on purpose; staleness is bounded by the TTLs.
func (c *Cache) InvalidateListings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Movies)
	delete(c.entries, Categories)
	delete(c.entries, Search)
}

// Clear empties the whole cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Class]map[string]entry)
}
