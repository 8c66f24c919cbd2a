// Package cache provides the bounded in-memory result cache consulted by
// the gate: least-recently-used eviction at capacity, per-entry TTL expiry
// purged lazily on touch.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config controls cache capacity and entry lifetime.
type Config struct {
	// MaxSize bounds the number of live entries. Zero or negative disables
	// the cache.
	MaxSize int
	// TTL is the maximum age of an entry before a lookup treats it as gone.
	// Zero or negative means nothing is ever admitted.
	TTL time.Duration
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expiries  int64 `json:"expiries"`
}

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

// Cache is a fixed-capacity key/value store safe for concurrent use.
// Lookups refresh recency; inserts at capacity evict the entry whose last
// access is oldest.
type Cache struct {
	mu        sync.Mutex
	cfg       Config
	order     *list.List // front = most recently used
	items     map[string]*list.Element
	hits      int64
	misses    int64
	evictions int64
	expiries  int64
}

// New builds a cache from cfg.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:   cfg,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the live value stored under key. An entry older than the TTL
// is purged on touch and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled() {
		return nil, false
	}

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	if c.now().Sub(ent.storedAt) >= c.cfg.TTL {
		c.removeElement(elem)
		c.expiries++
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return ent.value, true
}

// Set stores value under key and refreshes its recency. At capacity the
// least recently used entry is evicted first. No-op when the cache is
// disabled.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled() {
		return
	}

	now := c.now()
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.storedAt = now
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.cfg.MaxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions++
		}
	}

	c.items[key] = c.order.PushFront(&entry{key: key, value: value, storedAt: now})
}

// Invalidate drops key if present and reports whether it was held.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Len reports the number of stored entries, including expired ones not yet
// purged by a touch.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.order.Len(),
		MaxSize:   c.cfg.MaxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expiries:  c.expiries,
	}
}

func (c *Cache) enabled() bool {
	return c.cfg.MaxSize > 0 && c.cfg.TTL > 0
}

// removeElement must be called with c.mu held.
func (c *Cache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

func (c *Cache) now() time.Time {
	if c.cfg.Clock != nil {
		return c.cfg.Clock()
	}
	return time.Now().UTC()
}
