package security

import (
	"strings"
	"sync"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/logger"
	"github.com/guileen/objectql/types"
)

// WildcardObject keys policies that apply to every RLS-enabled object.
const WildcardObject = "*"

// Enforcer rewrites query trees to add row-level access predicates.
type Enforcer struct {
	metadata catalog.MetadataProvider

	mu       sync.RWMutex
	policies map[string][]Policy // object name (or WildcardObject) -> policies
}

// NewEnforcer creates an enforcer preloaded with the default wildcard
// policies.
func NewEnforcer(metadata catalog.MetadataProvider) *Enforcer {
	e := &Enforcer{
		metadata: metadata,
		policies: make(map[string][]Policy),
	}
	for _, p := range DefaultPolicies() {
		e.RegisterPolicy(WildcardObject, p)
	}
	return e
}

// RegisterPolicy adds a policy for the named object, or for every object
// when the name is WildcardObject. A policy with the same name replaces
// the previous registration.
func (e *Enforcer) RegisterPolicy(object string, policy Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.policies[object]
	for i := range list {
		if list[i].Name == policy.Name {
			list[i] = policy
			return
		}
	}
	e.policies[object] = append(list, policy)
}

// Apply returns the query with RLS predicates AND-ed into its WHERE
// clause, or the input unchanged when no policy applies. The input is
// never mutated; a rewritten query is always a deep copy.
func (e *Enforcer) Apply(query *types.Query, sctx *types.SecurityContext) *types.Query {
	if sctx == nil || sctx.IsAdmin() {
		return query
	}

	meta, err := e.metadata.Object(query.FromObject)
	if err != nil {
		// Unknown object: nothing to enforce here, generation raises later.
		return query
	}
	if !meta.HasRLS {
		return query
	}

	predicate := e.buildPredicate(meta, sctx)
	if predicate == nil {
		return query
	}

	logger.Debug("applying row-level security",
		"object", query.FromObject, "user_id", sctx.UserID)

	rewritten := query.Clone()
	rewritten.Where = types.And(rewritten.Where, predicate)
	return rewritten
}

// buildPredicate OR-combines every applicable policy's predicate: a record
// is visible if ANY policy grants access. A policy whose predicate names a
// field the object does not have (e.g. TerritoryId on an object without
// territories) is skipped rather than failing generation later.
func (e *Enforcer) buildPredicate(meta *types.ObjectMetadata, sctx *types.SecurityContext) *types.Condition {
	var predicate *types.Condition
	for _, policy := range e.applicablePolicies(meta.ObjectName, sctx) {
		built := policy.Build(sctx)
		if !supportsPredicate(meta, built) {
			logger.Debug("skipping policy without matching fields",
				"object", meta.ObjectName, "policy", policy.Name)
			continue
		}
		predicate = types.Or(predicate, built)
	}
	return predicate
}

// supportsPredicate reports whether every leaf field of the condition
// resolves on the object. Subquery bodies run against their own objects
// and are not checked here.
func supportsPredicate(meta *types.ObjectMetadata, c *types.Condition) bool {
	if c == nil {
		return true
	}
	if !c.IsLeaf() {
		return supportsPredicate(meta, c.Left) && supportsPredicate(meta, c.Right)
	}
	if c.Field == "" || strings.ContainsRune(c.Field, '.') {
		return true
	}
	return meta.Field(c.Field) != nil
}

func (e *Enforcer) applicablePolicies(object string, sctx *types.SecurityContext) []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	candidates := e.policies[object]
	if len(candidates) == 0 {
		candidates = e.policies[WildcardObject]
	}

	var applicable []Policy
	for _, p := range candidates {
		if p.Applicable == nil || p.Applicable(sctx) {
			applicable = append(applicable, p)
		}
	}
	return applicable
}

// ValidateRecordAccess evaluates the applicable policies against an
// in-memory record. Access is granted iff any policy's predicate holds;
// otherwise a *types.SecurityError is returned. Subquery predicates cannot
// be evaluated in-memory and never grant.
func (e *Enforcer) ValidateRecordAccess(object string, record types.Row, access types.AccessType, sctx *types.SecurityContext) error {
	if sctx != nil && sctx.IsAdmin() {
		return nil
	}

	meta, err := e.metadata.Object(object)
	if err != nil {
		return err
	}
	if !meta.HasRLS {
		return nil
	}

	for _, policy := range e.applicablePolicies(object, sctx) {
		built := policy.Build(sctx)
		if !supportsPredicate(meta, built) {
			continue
		}
		if evalCondition(built, record) {
			return nil
		}
	}
	return &types.SecurityError{Object: object, UserID: sctx.UserID, Access: access}
}

// evalCondition evaluates a condition tree against a record map. Field
// lookup is case-insensitive to tolerate column-name keyed rows.
func evalCondition(c *types.Condition, record types.Row) bool {
	if c == nil {
		return false
	}
	if !c.IsLeaf() {
		left := evalCondition(c.Left, record)
		right := evalCondition(c.Right, record)
		if c.Logical == types.LogicalAnd {
			return left && right
		}
		return left || right
	}

	if c.Subquery != nil {
		return false
	}

	value, present := lookupField(record, c.Field)
	switch c.Op {
	case types.OpEquals:
		return present && equalValues(value, c.Value)
	case types.OpNotEquals:
		return present && !equalValues(value, c.Value)
	case types.OpIn:
		if !present {
			return false
		}
		list, ok := c.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if equalValues(value, item) {
				return true
			}
		}
		return false
	case types.OpIsNull:
		return !present || value == nil
	case types.OpIsNotNull:
		return present && value != nil
	default:
		return false
	}
}

func lookupField(record types.Row, field string) (interface{}, bool) {
	if v, ok := record[field]; ok {
		return v, true
	}
	for k, v := range record {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	return nil, false
}

func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	return aok && bok && as == bs
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
