package optimizer

import (
	"math"

	"github.com/guileen/objectql/logger"
	"github.com/guileen/objectql/types"
)

// dpJoinLimit bounds the dynamic-programming search; beyond it the subset
// table (2^n states) stops paying for itself and the greedy order is used.
const dpJoinLimit = 6

// joinCost models one join step: the cheaper of nested-loop and hash
// build, plus the cost of emitting the joined rows.
func joinCost(cardinality float64, join types.Join) float64 {
	rows := float64(join.EstimatedRowCount)
	return math.Min(cardinality*rows, cardinality+rows) + cardinality*rows*join.Selectivity
}

// orderJoins picks a join order minimizing cumulative joinCost. Zero or
// one joins are returned as-is; up to dpJoinLimit joins are ordered by
// dynamic programming over subset bitmasks; larger sets greedily.
func (o *Optimizer) orderJoins(joins []types.Join, cardinality float64) []types.Join {
	switch {
	case len(joins) == 0:
		return nil
	case len(joins) == 1:
		return append([]types.Join(nil), joins...)
	case len(joins) <= dpJoinLimit:
		if order := dpOrder(joins, cardinality); order != nil {
			return order
		}
		logger.Warn("join order search failed, keeping declaration order", "joins", len(joins))
		return append([]types.Join(nil), joins...)
	default:
		return greedyOrder(joins, cardinality)
	}
}

type dpState struct {
	cost        float64
	cardinality float64
	order       []int
}

// dpOrder runs the Selinger-style subset DP: for each nonempty subset S,
// the best plan is the cheapest way of extending some S\{j} with join j.
func dpOrder(joins []types.Join, cardinality float64) []types.Join {
	n := len(joins)
	size := 1 << n
	dp := make([]*dpState, size)
	dp[0] = &dpState{cost: 0, cardinality: cardinality}

	for mask := 1; mask < size; mask++ {
		for j := 0; j < n; j++ {
			bit := 1 << j
			if mask&bit == 0 {
				continue
			}
			prev := dp[mask^bit]
			if prev == nil {
				continue
			}
			cost := prev.cost + joinCost(prev.cardinality, joins[j])
			if dp[mask] == nil || cost < dp[mask].cost {
				order := make([]int, len(prev.order), len(prev.order)+1)
				copy(order, prev.order)
				dp[mask] = &dpState{
					cost:        cost,
					cardinality: prev.cardinality * joins[j].Selectivity,
					order:       append(order, j),
				}
			}
		}
	}

	final := dp[size-1]
	if final == nil {
		return nil
	}
	ordered := make([]types.Join, n)
	for i, idx := range final.order {
		ordered[i] = joins[idx]
	}
	return ordered
}

// greedyOrder repeatedly takes the cheapest remaining join against the
// running cardinality.
func greedyOrder(joins []types.Join, cardinality float64) []types.Join {
	remaining := append([]types.Join(nil), joins...)
	ordered := make([]types.Join, 0, len(joins))

	for len(remaining) > 0 {
		best := 0
		bestCost := joinCost(cardinality, remaining[0])
		for i := 1; i < len(remaining); i++ {
			if cost := joinCost(cardinality, remaining[i]); cost < bestCost {
				best, bestCost = i, cost
			}
		}
		ordered = append(ordered, remaining[best])
		cardinality *= remaining[best].Selectivity
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}
