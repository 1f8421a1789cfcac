package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/objectql/types"
)

func testPlan(id string) *types.Plan {
	return &types.Plan{PlanID: id}
}

func TestPlanCache_GetSet(t *testing.T) {
	c := NewPlanCache(10, time.Minute)

	plan := testPlan("p1")
	c.Put("k1", plan)

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Same(t, plan, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestPlanCache_TTLExpiry(t *testing.T) {
	c := NewPlanCache(10, 10*time.Millisecond)
	c.Put("k1", testPlan("p1"))

	_, ok := c.Get("k1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPlanCache_LRUEviction(t *testing.T) {
	c := NewPlanCache(3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), testPlan(fmt.Sprintf("p%d", i)))
	}

	// Touch k0 so k1 becomes the least recently used.
	_, ok := c.Get("k0")
	require.True(t, ok)

	c.Put("k3", testPlan("p3"))
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get("k1")
	assert.False(t, ok)
	for _, key := range []string{"k0", "k2", "k3"} {
		_, ok := c.Get(key)
		assert.True(t, ok, key)
	}
}

func TestPlanCache_CapacityEvictsExactlyOne(t *testing.T) {
	c := NewPlanCache(5, time.Minute)
	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("k%d", i), testPlan(fmt.Sprintf("p%d", i)))
	}

	assert.Equal(t, 5, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok)
	_, ok = c.Get("k1")
	assert.True(t, ok)
}

func TestPlanCache_Statistics(t *testing.T) {
	c := NewPlanCache(10, time.Minute)
	c.Put("k1", testPlan("p1"))
	c.Put("k2", testPlan("p2"))

	for i := 0; i < 3; i++ {
		_, ok := c.Get("k1")
		require.True(t, ok)
	}
	_, ok := c.Get("k2")
	require.True(t, ok)

	stats := c.GetStatistics()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, int64(4), stats.TotalHits)
	assert.Equal(t, 2.0, stats.AvgHits)
	assert.False(t, stats.OldestEntry.IsZero())
	require.NotEmpty(t, stats.TopPlans)
	assert.Equal(t, "p1", stats.TopPlans[0].PlanID)
	assert.Equal(t, int64(3), stats.TopPlans[0].Hits)
}

func TestPlanCache_Clear(t *testing.T) {
	c := NewPlanCache(10, time.Minute)
	c.Put("k1", testPlan("p1"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestPlanCache_Sweep(t *testing.T) {
	c := NewPlanCache(10, 5*time.Millisecond)
	c.Put("k1", testPlan("p1"))

	time.Sleep(10 * time.Millisecond)
	c.sweep()
	assert.Equal(t, 0, c.Len())
}
