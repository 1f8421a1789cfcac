package security

import (
	"github.com/guileen/objectql/types"
)

// PolicyKind classifies a row-level security policy.
type PolicyKind string

const (
	OwnerBased     PolicyKind = "OwnerBased"
	SharingBased   PolicyKind = "SharingBased"
	HierarchyBased PolicyKind = "HierarchyBased"
	TerritoryBased PolicyKind = "TerritoryBased"
	CustomPolicy   PolicyKind = "Custom"
)

// Policy grants visibility over an object's rows. A record is visible when
// ANY applicable policy's predicate matches it.
type Policy struct {
	Name       string
	Kind       PolicyKind
	Applicable func(sctx *types.SecurityContext) bool
	Build      func(sctx *types.SecurityContext) *types.Condition
}

func always(*types.SecurityContext) bool { return true }

// DefaultPolicies returns the four standard sharing policies. They are
// registered as wildcard policies so any RLS-enabled object without
// specific policies inherits them.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name:       "owner",
			Kind:       OwnerBased,
			Applicable: always,
			Build: func(sctx *types.SecurityContext) *types.Condition {
				return &types.Condition{Field: "OwnerId", Op: types.OpEquals, Value: sctx.UserID}
			},
		},
		{
			Name:       "sharing",
			Kind:       SharingBased,
			Applicable: always,
			Build: func(sctx *types.SecurityContext) *types.Condition {
				owned := &types.Condition{Field: "OwnerId", Op: types.OpEquals, Value: sctx.UserID}
				shared := &types.Condition{
					Field: "Id",
					Op:    types.OpIn,
					Subquery: &types.Query{
						FromObject: "Share",
						Fields:     []types.Field{{Name: "RecordId"}},
						Where: &types.Condition{
							Field: "UserOrGroupId",
							Op:    types.OpEquals,
							Value: sctx.UserID,
						},
					},
				}
				return types.Or(owned, shared)
			},
		},
		{
			Name:       "hierarchy",
			Kind:       HierarchyBased,
			Applicable: always,
			Build: func(sctx *types.SecurityContext) *types.Condition {
				return &types.Condition{
					Field: "OwnerId",
					Op:    types.OpIn,
					Subquery: &types.Query{
						FromObject: "UserRoleHierarchy",
						Fields:     []types.Field{{Name: "SubordinateUserId"}},
						Where: &types.Condition{
							Field: "SupervisorUserId",
							Op:    types.OpEquals,
							Value: sctx.UserID,
						},
					},
				}
			},
		},
		{
			Name:       "territory",
			Kind:       TerritoryBased,
			Applicable: always,
			Build: func(sctx *types.SecurityContext) *types.Condition {
				values := make([]interface{}, len(sctx.TerritoryIDs))
				for i, id := range sctx.TerritoryIDs {
					values[i] = id
				}
				return &types.Condition{Field: "TerritoryId", Op: types.OpIn, Value: values}
			},
		},
	}
}
