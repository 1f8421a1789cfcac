package cache

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/guileen/objectql/types"
)

// CachedPlan is a plan cache entry with access bookkeeping.
type CachedPlan struct {
	Plan           *types.Plan
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Hits           int64
}

// PlanCache is a thread-safe LRU cache of optimized plans with TTL
// expiration. Get/Put share one mutex guarding both the map and the LRU
// list so list order and map content stay consistent.
type PlanCache struct {
	capacity int
	ttl      time.Duration

	mu        sync.Mutex
	cache     map[string]*list.Element
	evictList *list.List

	sweepStop chan struct{}
	sweepOnce sync.Once
}

type planEntry struct {
	key    string
	cached *CachedPlan
}

// NewPlanCache creates a plan cache with the given capacity and TTL. A
// zero or negative ttl disables expiration.
func NewPlanCache(capacity int, ttl time.Duration) *PlanCache {
	return &PlanCache{
		capacity:  capacity,
		ttl:       ttl,
		cache:     make(map[string]*list.Element),
		evictList: list.New(),
		sweepStop: make(chan struct{}),
	}
}

// Get retrieves a plan. An expired entry is evicted and reported as a
// miss; a hit bumps the entry to the front of the LRU list.
func (c *PlanCache) Get(key string) (*types.Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.cache[key]
	if !exists {
		return nil, false
	}
	entry := element.Value.(*planEntry)

	if c.ttl > 0 && time.Since(entry.cached.CreatedAt) > c.ttl {
		c.removeElement(element)
		return nil, false
	}

	entry.cached.Hits++
	entry.cached.LastAccessedAt = time.Now()
	c.evictList.MoveToFront(element)
	return entry.cached.Plan, true
}

// Put adds a plan. At capacity the least-recently-used entry is evicted
// first.
func (c *PlanCache) Put(key string, plan *types.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if element, exists := c.cache[key]; exists {
		c.evictList.MoveToFront(element)
		entry := element.Value.(*planEntry)
		entry.cached.Plan = plan
		entry.cached.CreatedAt = now
		entry.cached.LastAccessedAt = now
		return
	}

	if c.evictList.Len() >= c.capacity {
		c.evictOldest()
	}

	element := c.evictList.PushFront(&planEntry{
		key: key,
		cached: &CachedPlan{
			Plan:           plan,
			CreatedAt:      now,
			LastAccessedAt: now,
		},
	})
	c.cache[key] = element
}

// Remove removes a key from the cache.
func (c *PlanCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, exists := c.cache[key]; exists {
		c.removeElement(element)
	}
}

// Len returns the number of cached plans.
func (c *PlanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Clear removes all cached plans.
func (c *PlanCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.evictList.Init()
}

// StartSweeper launches a background goroutine that evicts expired entries
// at the given interval. Close stops it.
func (c *PlanCache) StartSweeper(interval time.Duration) {
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
func (c *PlanCache) Close() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

func (c *PlanCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for element := c.evictList.Back(); element != nil; {
		prev := element.Prev()
		entry := element.Value.(*planEntry)
		if now.Sub(entry.cached.CreatedAt) > c.ttl {
			c.removeElement(element)
		}
		element = prev
	}
}

func (c *PlanCache) evictOldest() {
	if element := c.evictList.Back(); element != nil {
		c.removeElement(element)
	}
}

func (c *PlanCache) removeElement(element *list.Element) {
	c.evictList.Remove(element)
	delete(c.cache, element.Value.(*planEntry).key)
}

// PlanStat describes one cached plan in cache statistics output.
type PlanStat struct {
	PlanID string `json:"plan_id"`
	Hits   int64  `json:"hits"`
}

// Statistics is a snapshot of plan cache state.
type Statistics struct {
	TotalEntries    int        `json:"total_entries"`
	TotalHits       int64      `json:"total_hits"`
	AvgHits         float64    `json:"avg_hits"`
	OldestEntry     time.Time  `json:"oldest_entry"`
	MostRecentEntry time.Time  `json:"most_recent_entry"`
	TopPlans        []PlanStat `json:"top_plans"`
}

// GetStatistics reports entry counts, hit counters, and the most-hit plans.
func (c *PlanCache) GetStatistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Statistics{TotalEntries: c.evictList.Len()}
	plans := make([]PlanStat, 0, c.evictList.Len())

	for element := c.evictList.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*planEntry)
		stats.TotalHits += entry.cached.Hits
		if stats.OldestEntry.IsZero() || entry.cached.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.cached.CreatedAt
		}
		if entry.cached.CreatedAt.After(stats.MostRecentEntry) {
			stats.MostRecentEntry = entry.cached.CreatedAt
		}
		plans = append(plans, PlanStat{PlanID: entry.cached.Plan.PlanID, Hits: entry.cached.Hits})
	}

	if stats.TotalEntries > 0 {
		stats.AvgHits = float64(stats.TotalHits) / float64(stats.TotalEntries)
	}

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Hits != plans[j].Hits {
			return plans[i].Hits > plans[j].Hits
		}
		return plans[i].PlanID < plans[j].PlanID
	})
	if len(plans) > 10 {
		plans = plans[:10]
	}
	stats.TopPlans = plans
	return stats
}
