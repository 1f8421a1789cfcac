package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/parser"
	"github.com/guileen/objectql/types"
)

func newTestOptimizer() *Optimizer {
	registry := catalog.NewDemoRegistry()
	return New(registry, registry)
}

func parseQuery(t *testing.T, dsql string) *types.Query {
	t.Helper()
	query, err := parser.New(catalog.NewDemoRegistry()).Parse(dsql)
	require.NoError(t, err)
	return query
}

func leaf(field string, op types.Operator, value interface{}) *types.Condition {
	return &types.Condition{Field: field, Op: op, Value: value}
}

func TestEstimateSelectivity_Leaves(t *testing.T) {
	o := newTestOptimizer()

	tests := []struct {
		name string
		cond *types.Condition
		want float64
	}{
		{"equality uses field statistics", leaf("Industry", types.OpEquals, "Tech"), 0.05},
		{"equality unknown field defaults", leaf("Zzz", types.OpEquals, "x"), 0.1},
		{"not equals complements", leaf("Industry", types.OpNotEquals, "Tech"), 0.95},
		{"range", leaf("AnnualRevenue", types.OpGreaterThan, 100), 0.33},
		{"like", leaf("Name", types.OpLike, "A%c"), 0.1},
		{"contains", leaf("Name", types.OpContains, "corp"), 0.05},
		{"starts with", leaf("Name", types.OpStartsWith, "A"), 0.1},
		{"ends with", leaf("Name", types.OpEndsWith, "Inc"), 0.1},
		{"in scales with list size", leaf("Industry", types.OpIn, []interface{}{"a", "b", "c"}), 0.15},
		{"not in complements", leaf("Industry", types.OpNotIn, []interface{}{"a", "b", "c"}), 0.85},
		{"is null on nullable", leaf("Industry", types.OpIsNull, nil), 0.1},
		{"is null on non-nullable", leaf("Id", types.OpIsNull, nil), 0.0},
		{"is not null on nullable", leaf("Industry", types.OpIsNotNull, nil), 0.9},
		{"is not null on non-nullable", leaf("Id", types.OpIsNotNull, nil), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, o.estimateSelectivity("Account", tt.cond), 1e-9)
		})
	}
}

func TestEstimateSelectivity_InListCapped(t *testing.T) {
	o := newTestOptimizer()
	list := make([]interface{}, 20)
	for i := range list {
		list[i] = i
	}
	assert.InDelta(t, 0.5, o.estimateSelectivity("Account", leaf("Industry", types.OpIn, list)), 1e-9)
}

func TestEstimateSelectivity_Combinations(t *testing.T) {
	o := newTestOptimizer()

	and := &types.Condition{
		Logical: types.LogicalAnd,
		Left:    leaf("Industry", types.OpEquals, "Tech"),
		Right:   leaf("AnnualRevenue", types.OpGreaterThan, 100),
	}
	assert.InDelta(t, 0.05*0.33, o.estimateSelectivity("Account", and), 1e-9)

	or := &types.Condition{
		Logical: types.LogicalOr,
		Left:    leaf("Industry", types.OpEquals, "Tech"),
		Right:   leaf("AnnualRevenue", types.OpGreaterThan, 100),
	}
	assert.InDelta(t, 0.05+0.33-0.05*0.33, o.estimateSelectivity("Account", or), 1e-9)
}

func TestOptimize_Cardinalities(t *testing.T) {
	o := newTestOptimizer()
	plan := o.Optimize(parseQuery(t, "SELECT Id FROM Account WHERE Industry = 'Tech'"))

	assert.Equal(t, int64(50000), plan.BaseCardinality)
	assert.Equal(t, int64(2500), plan.FilteredCardinality)
	assert.NotEmpty(t, plan.PlanID)
	assert.Greater(t, plan.EstimatedCost, 0.0)
}

func TestOptimize_StrategyFlags(t *testing.T) {
	o := newTestOptimizer()

	grouped := o.Optimize(parseQuery(t,
		"SELECT StageName, COUNT(Id) FROM Opportunity GROUP BY StageName"))
	assert.True(t, grouped.UseHashAggregation)
	assert.False(t, grouped.UseStreaming) // aggregates never stream

	large := o.Optimize(parseQuery(t, "SELECT Id FROM Account"))
	assert.True(t, large.UseStreaming)
	assert.False(t, large.UseParallel) // no joins

	joined := o.Optimize(parseQuery(t, "SELECT Id, Account.Name, Owner.Name FROM Contact"))
	assert.True(t, joined.UseParallel)
	assert.GreaterOrEqual(t, joined.ParallelDegree, 1)
	assert.LessOrEqual(t, joined.ParallelDegree, 4)
}

func TestOptimize_Deterministic(t *testing.T) {
	o := newTestOptimizer()
	const dsql = "SELECT Id, Account.Name FROM Contact WHERE Email IS NOT NULL ORDER BY Name"

	first := o.Optimize(parseQuery(t, dsql))
	second := o.Optimize(parseQuery(t, dsql))
	assert.Equal(t, first, second)
}

func TestSelectIndexes_TopThreeByScore(t *testing.T) {
	o := newTestOptimizer()
	query := parseQuery(t, "SELECT Id FROM Account WHERE Id = 'a' AND Name = 'Acme' AND OwnerId = 'u1' AND TerritoryId = 't1' AND Industry = 'Tech'")

	plan := o.Optimize(query)
	require.Len(t, plan.SelectedIndexes, 3)

	// Industry is unindexed and must not appear; the three most
	// discriminating indexed fields win, best first.
	assert.Equal(t, "Id", plan.SelectedIndexes[0].FieldName)
	assert.Equal(t, "Name", plan.SelectedIndexes[1].FieldName)
	assert.Equal(t, "OwnerId", plan.SelectedIndexes[2].FieldName)
}
