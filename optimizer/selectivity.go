package optimizer

import (
	"strings"

	"github.com/guileen/objectql/types"
)

// selectivity defaults, applied when statistics cannot answer
const (
	defaultEqualitySelectivity = 0.1
	rangeSelectivity           = 0.33
	likeSelectivity            = 0.1
	containsSelectivity        = 0.05
	prefixSuffixSelectivity    = 0.1
	inListCap                  = 0.5
	nullSelectivity            = 0.1
	notNullSelectivity         = 0.9
)

// estimateSelectivity computes the fraction of rows passing a condition
// tree, combining AND multiplicatively and OR by inclusion-exclusion.
func (o *Optimizer) estimateSelectivity(object string, c *types.Condition) float64 {
	if c == nil {
		return 1.0
	}
	if !c.IsLeaf() {
		left := o.estimateSelectivity(object, c.Left)
		right := o.estimateSelectivity(object, c.Right)
		if c.Logical == types.LogicalAnd {
			return left * right
		}
		return left + right - left*right
	}
	return o.leafSelectivity(object, c)
}

func (o *Optimizer) leafSelectivity(object string, c *types.Condition) float64 {
	fieldSel := o.fieldSelectivity(object, c.Field)

	switch c.Op {
	case types.OpEquals:
		return fieldSel
	case types.OpNotEquals:
		return 1 - fieldSel
	case types.OpLessThan, types.OpLessEqual, types.OpGreaterThan, types.OpGreaterEqual:
		return rangeSelectivity
	case types.OpLike:
		return likeSelectivity
	case types.OpContains:
		return containsSelectivity
	case types.OpStartsWith, types.OpEndsWith:
		return prefixSuffixSelectivity
	case types.OpIn:
		return inSelectivity(c, fieldSel)
	case types.OpNotIn:
		return 1 - inSelectivity(c, fieldSel)
	case types.OpIsNull:
		if o.fieldNullable(object, c.Field) {
			return nullSelectivity
		}
		return 0
	case types.OpIsNotNull:
		if o.fieldNullable(object, c.Field) {
			return notNullSelectivity
		}
		return 1
	default:
		return defaultEqualitySelectivity
	}
}

func inSelectivity(c *types.Condition, fieldSel float64) float64 {
	if c.Subquery != nil {
		return inListCap
	}
	list, ok := c.Value.([]interface{})
	if !ok || len(list) == 0 {
		return inListCap
	}
	sel := float64(len(list)) * fieldSel
	if sel > inListCap {
		return inListCap
	}
	return sel
}

// fieldSelectivity resolves a field's equality selectivity, following one
// relationship hop for dotted references.
func (o *Optimizer) fieldSelectivity(object, field string) float64 {
	object, field = o.resolveFieldObject(object, field)
	if sel := o.stats.FieldSelectivity(object, field); sel > 0 {
		return sel
	}
	return defaultEqualitySelectivity
}

func (o *Optimizer) fieldNullable(object, field string) bool {
	object, field = o.resolveFieldObject(object, field)
	meta, err := o.metadata.Object(object)
	if err != nil {
		return true
	}
	if f := meta.Field(field); f != nil {
		return f.Nullable
	}
	return true
}

func (o *Optimizer) resolveFieldObject(object, field string) (string, string) {
	dot := strings.IndexByte(field, '.')
	if dot < 0 {
		return object, field
	}
	meta, err := o.metadata.Object(object)
	if err != nil {
		return object, field
	}
	if rel := meta.Relationship(field[:dot]); rel != nil {
		return rel.TargetObject, field[dot+1:]
	}
	return object, field
}
