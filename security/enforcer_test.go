package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/parser"
	"github.com/guileen/objectql/types"
)

func parseQuery(t *testing.T, dsql string) *types.Query {
	t.Helper()
	query, err := parser.New(catalog.NewDemoRegistry()).Parse(dsql)
	require.NoError(t, err)
	return query
}

func newTestEnforcer() *Enforcer {
	return NewEnforcer(catalog.NewDemoRegistry())
}

func TestApply_AdminBypass(t *testing.T) {
	query := parseQuery(t, "SELECT Id FROM Account WHERE Name = 'Acme'")
	sctx := &types.SecurityContext{UserID: "u1", Roles: []string{types.AdminRole}}

	result := newTestEnforcer().Apply(query, sctx)
	assert.Same(t, query, result)
}

func TestApply_ObjectWithoutRLS(t *testing.T) {
	query := parseQuery(t, "SELECT Id FROM User")
	sctx := &types.SecurityContext{UserID: "u1"}

	result := newTestEnforcer().Apply(query, sctx)
	assert.Same(t, query, result)
}

// collectLeaves flattens a condition tree into its predicate leaves.
func collectLeaves(c *types.Condition) []*types.Condition {
	if c == nil {
		return nil
	}
	if c.IsLeaf() {
		return []*types.Condition{c}
	}
	return append(collectLeaves(c.Left), collectLeaves(c.Right)...)
}

func TestApply_DefaultPolicyComposition(t *testing.T) {
	query := parseQuery(t, "SELECT Id FROM Account WHERE AnnualRevenue > 100")
	sctx := &types.SecurityContext{UserID: "u1", TerritoryIDs: []string{"t-west"}}

	result := newTestEnforcer().Apply(query, sctx)
	require.NotSame(t, query, result)

	root := result.Where
	require.NotNil(t, root)
	require.False(t, root.IsLeaf())
	assert.Equal(t, types.LogicalAnd, root.Logical)

	// Left side is the original filter, untouched.
	assert.Equal(t, "AnnualRevenue", root.Left.Field)
	assert.Equal(t, types.OpGreaterThan, root.Left.Op)

	// Right side is the OR of the four default grants.
	leaves := collectLeaves(root.Right)
	require.Len(t, leaves, 5) // sharing contributes two leaves

	var ownerEquals, shareSubquery, hierarchySubquery, territoryIn bool
	for _, leaf := range leaves {
		switch {
		case leaf.Field == "OwnerId" && leaf.Op == types.OpEquals:
			ownerEquals = true
			assert.Equal(t, "u1", leaf.Value)
		case leaf.Subquery != nil && leaf.Subquery.FromObject == "Share":
			shareSubquery = true
		case leaf.Subquery != nil && leaf.Subquery.FromObject == "UserRoleHierarchy":
			hierarchySubquery = true
		case leaf.Field == "TerritoryId" && leaf.Op == types.OpIn:
			territoryIn = true
			assert.Equal(t, []interface{}{"t-west"}, leaf.Value)
		}
	}
	assert.True(t, ownerEquals)
	assert.True(t, shareSubquery)
	assert.True(t, hierarchySubquery)
	assert.True(t, territoryIn)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	query := parseQuery(t, "SELECT Id FROM Account WHERE AnnualRevenue > 100")
	sctx := &types.SecurityContext{UserID: "u1"}

	_ = newTestEnforcer().Apply(query, sctx)

	require.NotNil(t, query.Where)
	assert.True(t, query.Where.IsLeaf())
	assert.Equal(t, "AnnualRevenue", query.Where.Field)
}

func TestApply_QueryWithoutWhere(t *testing.T) {
	query := parseQuery(t, "SELECT Id FROM Account")
	sctx := &types.SecurityContext{UserID: "u1"}

	result := newTestEnforcer().Apply(query, sctx)
	require.NotNil(t, result.Where)
	assert.False(t, result.Where.IsLeaf())
}

func TestRegisterPolicy_ObjectSpecificWinsOverWildcard(t *testing.T) {
	enforcer := newTestEnforcer()
	enforcer.RegisterPolicy("Account", Policy{
		Name: "industry-only",
		Kind: CustomPolicy,
		Build: func(sctx *types.SecurityContext) *types.Condition {
			return &types.Condition{Field: "Industry", Op: types.OpEquals, Value: "Tech"}
		},
	})

	query := parseQuery(t, "SELECT Id FROM Account")
	result := enforcer.Apply(query, &types.SecurityContext{UserID: "u1"})

	leaves := collectLeaves(result.Where)
	require.Len(t, leaves, 1)
	assert.Equal(t, "Industry", leaves[0].Field)
}

func TestValidateRecordAccess(t *testing.T) {
	enforcer := newTestEnforcer()

	owner := &types.SecurityContext{UserID: "u1"}
	admin := &types.SecurityContext{UserID: "root", Roles: []string{types.AdminRole}}

	record := types.Row{"OwnerId": "u1", "Name": "Acme"}
	assert.NoError(t, enforcer.ValidateRecordAccess("Account", record, types.AccessRead, owner))
	assert.NoError(t, enforcer.ValidateRecordAccess("Account", record, types.AccessRead, admin))

	foreign := types.Row{"OwnerId": "u2"}
	err := enforcer.ValidateRecordAccess("Account", foreign, types.AccessRead, owner)
	var secErr *types.SecurityError
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, "Account", secErr.Object)

	// Territory grant admits a record the owner policies reject.
	territoryCtx := &types.SecurityContext{UserID: "u1", TerritoryIDs: []string{"t-west"}}
	territoryRecord := types.Row{"OwnerId": "u2", "TerritoryId": "t-west"}
	assert.NoError(t, enforcer.ValidateRecordAccess("Account", territoryRecord, types.AccessRead, territoryCtx))
}

// Contact has no TerritoryId field, so the territory policy must be
// skipped instead of producing an unresolvable predicate.
func TestApply_SkipsPoliciesWithoutMatchingFields(t *testing.T) {
	query := parseQuery(t, "SELECT Id FROM Contact")
	sctx := &types.SecurityContext{UserID: "u1", TerritoryIDs: []string{"t-west"}}

	result := newTestEnforcer().Apply(query, sctx)
	for _, leaf := range collectLeaves(result.Where) {
		assert.NotEqual(t, "TerritoryId", leaf.Field)
	}
}

func TestValidateRecordAccess_NoRLSObject(t *testing.T) {
	enforcer := newTestEnforcer()
	sctx := &types.SecurityContext{UserID: "u1"}
	assert.NoError(t, enforcer.ValidateRecordAccess("User", types.Row{"Id": "x"}, types.AccessRead, sctx))
}
