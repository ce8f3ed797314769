// Package cache provides bounded in-memory memoization of hot entities and
// named query results in front of the record store. The cache is
// best-effort: a miss always falls through to the store, and every mutation
// through a manager invalidates the entries it could have staled.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/fleetdb/record"
)

// EntityKey addresses one cached record.
type EntityKey struct {
	Table record.Table
	ID    uint64
}

// DefaultEntityCapacity bounds the entity cache when no capacity is given.
const DefaultEntityCapacity = 4096

// Cache memoizes entities by id and query results by name.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	items     map[EntityKey]*list.Element
	evictList *list.List

	qmu     sync.Mutex
	queries map[string][]uint64
	sf      singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   EntityKey
	value any
}

// New creates a cache bounding the entity side to capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultEntityCapacity
	}
	return &Cache{
		capacity:  capacity,
		items:     make(map[EntityKey]*list.Element),
		evictList: list.New(),
		queries:   make(map[string][]uint64),
	}
}

// GetEntity returns a cached record.
func (c *Cache) GetEntity(key EntityKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// PutEntity caches a record that was just read from or written to the store.
func (c *Cache) PutEntity(key EntityKey, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*entry).value = v
		return
	}
	ent := &entry{key: key, value: v}
	c.items[key] = c.evictList.PushFront(ent)
	for c.evictList.Len() > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
}

// InvalidateEntity drops one cached record.
func (c *Cache) InvalidateEntity(key EntityKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// InvalidateTable drops every cached record of one table.
func (c *Cache) InvalidateTable(tbl record.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, ent := range c.items {
		if key.Table == tbl {
			toRemove = append(toRemove, ent)
		}
	}
	for _, ent := range toRemove {
		c.removeElement(ent)
	}
}

func (c *Cache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*entry).key)
}

// GetQuery returns a cached query result (a list of ids).
func (c *Cache) GetQuery(key string) ([]uint64, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()

	ids, ok := c.queries[key]
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return ids, ok
}

// PutQuery caches a query result.
func (c *Cache) PutQuery(key string, ids []uint64) {
	c.qmu.Lock()
	c.queries[key] = ids
	c.qmu.Unlock()
}

// FetchQuery returns the cached result for key, running fill at most once
// per key across concurrent callers on a miss.
func (c *Cache) FetchQuery(key string, fill func() []uint64) []uint64 {
	if ids, ok := c.GetQuery(key); ok {
		return ids
	}
	v, _, _ := c.sf.Do(key, func() (any, error) {
		ids := fill()
		c.PutQuery(key, ids)
		return ids, nil
	})
	return v.([]uint64)
}

// InvalidateQuery drops one cached query result.
func (c *Cache) InvalidateQuery(key string) {
	c.qmu.Lock()
	delete(c.queries, key)
	c.qmu.Unlock()
}

// ClearQueries drops every cached query result. Managers call this after
// any mutation whose effect on cached queries is not worth tracking
// precisely.
func (c *Cache) ClearQueries() {
	c.qmu.Lock()
	c.queries = make(map[string][]uint64)
	c.qmu.Unlock()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
