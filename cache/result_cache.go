package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/guileen/objectql/types"
)

// ResultCache memoizes result sets keyed by query hash. It shares the plan
// cache's LRU+TTL discipline, refuses result sets larger than maxRows, and
// tracks which objects each entry depends on so invalidation can be exact.
type ResultCache struct {
	capacity int
	ttl      time.Duration
	maxRows  int

	mu        sync.Mutex
	cache     map[string]*list.Element
	evictList *list.List

	sweepStop chan struct{}
	sweepOnce sync.Once
}

type resultEntry struct {
	key       string
	rows      []types.Row
	objects   []string
	createdAt time.Time
}

// NewResultCache creates a result cache. maxRows bounds the size of a
// cacheable result set; larger sets are simply not stored.
func NewResultCache(capacity int, ttl time.Duration, maxRows int) *ResultCache {
	return &ResultCache{
		capacity:  capacity,
		ttl:       ttl,
		maxRows:   maxRows,
		cache:     make(map[string]*list.Element),
		evictList: list.New(),
		sweepStop: make(chan struct{}),
	}
}

// Get retrieves a cached result set.
func (c *ResultCache) Get(key string) ([]types.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.cache[key]
	if !exists {
		return nil, false
	}
	entry := element.Value.(*resultEntry)

	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		c.removeElement(element)
		return nil, false
	}

	c.evictList.MoveToFront(element)
	return entry.rows, true
}

// Put stores a result set along with the objects it was computed from.
// Result sets above the row limit are not cached.
func (c *ResultCache) Put(key string, rows []types.Row, objects []string) {
	if c.maxRows > 0 && len(rows) > c.maxRows {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.cache[key]; exists {
		c.evictList.MoveToFront(element)
		entry := element.Value.(*resultEntry)
		entry.rows = rows
		entry.objects = objects
		entry.createdAt = time.Now()
		return
	}

	if c.evictList.Len() >= c.capacity {
		if element := c.evictList.Back(); element != nil {
			c.removeElement(element)
		}
	}

	element := c.evictList.PushFront(&resultEntry{
		key:       key,
		rows:      rows,
		objects:   objects,
		createdAt: time.Now(),
	})
	c.cache[key] = element
}

// InvalidateObject removes every entry whose query touched the named
// object. Entries stored without object tracking are removed too, which
// degrades to pessimistic clearing rather than serving stale rows.
func (c *ResultCache) InvalidateObject(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for element := c.evictList.Front(); element != nil; {
		next := element.Next()
		entry := element.Value.(*resultEntry)
		if entry.dependsOn(name) {
			c.removeElement(element)
			removed++
		}
		element = next
	}
	return removed
}

func (e *resultEntry) dependsOn(name string) bool {
	if len(e.objects) == 0 {
		return true
	}
	for _, obj := range e.objects {
		if obj == name {
			return true
		}
	}
	return false
}

// Len returns the number of cached result sets.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Clear removes all cached result sets.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.evictList.Init()
}

// StartSweeper launches the periodic TTL sweep. Close stops it.
func (c *ResultCache) StartSweeper(interval time.Duration) {
	if c.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.sweepStop:
				return
			}
		}
	}()
}

// Close stops the background sweeper.
func (c *ResultCache) Close() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

func (c *ResultCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for element := c.evictList.Back(); element != nil; {
		prev := element.Prev()
		entry := element.Value.(*resultEntry)
		if now.Sub(entry.createdAt) > c.ttl {
			c.removeElement(element)
		}
		element = prev
	}
}

func (c *ResultCache) removeElement(element *list.Element) {
	c.evictList.Remove(element)
	delete(c.cache, element.Value.(*resultEntry).key)
}
