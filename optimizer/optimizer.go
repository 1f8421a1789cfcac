// Package optimizer turns parsed queries into execution plans: cardinality
// estimation, join reordering, index selection, and strategy flags.
package optimizer

import (
	"math"
	"runtime"

	"github.com/guileen/objectql/cache"
	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/logger"
	"github.com/guileen/objectql/types"
)

const (
	// parallel execution thresholds
	parallelJoinThreshold = 2
	parallelRowThreshold  = 10000
	maxParallelDegree     = 4

	// streaming threshold
	streamingRowThreshold = 1000

	// per-row cost coefficients
	scanCostPerRow      = 0.1
	filterCostPerRow    = 0.05
	aggregateCostPerRow = 0.1
)

// Optimizer builds plans from query trees. Given the same metadata and
// statistics snapshot, Optimize is deterministic.
type Optimizer struct {
	metadata catalog.MetadataProvider
	stats    catalog.StatisticsProvider
}

// New creates an optimizer.
func New(metadata catalog.MetadataProvider, stats catalog.StatisticsProvider) *Optimizer {
	return &Optimizer{metadata: metadata, stats: stats}
}

// Optimize estimates cardinalities, orders joins, selects indexes, and
// decides execution strategy. It never fails the query: estimation gaps
// degrade to defaults and join ordering falls back to declaration order.
func (o *Optimizer) Optimize(query *types.Query) *types.Plan {
	base := o.stats.RowCount(query.FromObject)
	selectivity := o.estimateSelectivity(query.FromObject, query.Where)
	filtered := int64(math.Round(float64(base) * selectivity))

	plan := &types.Plan{
		Query:               query,
		BaseCardinality:     base,
		FilteredCardinality: filtered,
		PlanID:              cache.PlanID(query),
	}

	plan.JoinOrder = o.orderJoins(query.Joins, float64(filtered))
	plan.SelectedIndexes = o.selectIndexes(query)

	plan.UseParallel = len(query.Joins) >= parallelJoinThreshold && filtered > parallelRowThreshold
	if plan.UseParallel {
		plan.ParallelDegree = maxParallelDegree
		if cores := runtime.NumCPU(); cores < plan.ParallelDegree {
			plan.ParallelDegree = cores
		}
	}
	plan.UseHashAggregation = len(query.GroupBy) > 0
	plan.UseStreaming = filtered > streamingRowThreshold && !query.IsAggregate()

	plan.EstimatedCost = o.estimateCost(query, plan)

	logger.Debug("optimized query",
		"object", query.FromObject,
		"base_cardinality", base,
		"filtered_cardinality", filtered,
		"joins", len(plan.JoinOrder),
		"estimated_cost", plan.EstimatedCost)
	return plan
}

// estimateCost sums scan, filter, join, sort, and aggregation costs for
// cache comparison and telemetry.
func (o *Optimizer) estimateCost(query *types.Query, plan *types.Plan) float64 {
	base := float64(plan.BaseCardinality)
	cost := base * scanCostPerRow

	if query.Where != nil {
		cost += base * filterCostPerRow
	}

	cardinality := float64(plan.FilteredCardinality)
	for _, join := range plan.JoinOrder {
		cost += joinCost(cardinality, join)
		cardinality *= join.Selectivity
	}

	if len(query.OrderBy) > 0 && cardinality > 0 {
		cost += cardinality * log2(cardinality)
	}
	if query.IsAggregate() {
		cost += cardinality * aggregateCostPerRow
	}
	return cost
}

// log2 calculates the base-2 logarithm
func log2(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log2(x)
}
