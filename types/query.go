package types

// Row is a single result row keyed by field name (or alias).
type Row map[string]interface{}

// LogicalOperator combines two condition subtrees.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Operator is a comparison operator in a condition leaf.
type Operator string

const (
	OpEquals       Operator = "="
	OpNotEquals    Operator = "!="
	OpLessThan     Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreaterThan  Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLike         Operator = "LIKE"
	OpContains     Operator = "CONTAINS"
	OpStartsWith   Operator = "STARTS_WITH"
	OpEndsWith     Operator = "ENDS_WITH"
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT IN"
	OpIsNull       Operator = "IS NULL"
	OpIsNotNull    Operator = "IS NOT NULL"
)

// AggregateFunction names a supported aggregate.
type AggregateFunction string

const (
	AggCount         AggregateFunction = "COUNT"
	AggCountDistinct AggregateFunction = "COUNT_DISTINCT"
	AggSum           AggregateFunction = "SUM"
	AggAvg           AggregateFunction = "AVG"
	AggMin           AggregateFunction = "MIN"
	AggMax           AggregateFunction = "MAX"
)

// JoinType is the SQL join variant used for a derived relationship join.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
)

// SortDirection is the ORDER BY direction.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// NullsOrder controls where NULL values sort.
type NullsOrder string

const (
	NullsFirst NullsOrder = "FIRST"
	NullsLast  NullsOrder = "LAST"
)

// Query is the parsed representation of a DSQL statement. It is produced by
// the parser, rewritten once by the RLS enforcer, and immutable afterwards.
type Query struct {
	FromObject string
	Fields     []Field
	Where      *Condition
	OrderBy    []Order
	GroupBy    []string
	Having     *Condition
	Limit      *int
	Offset     *int
	Joins      []Join
}

// Field is one select-list item. Exactly one of Name, Aggregate, or
// Subquery is set.
type Field struct {
	Name      string
	Alias     string
	Aggregate *Aggregate
	Subquery  *Query
}

// Aggregate is an aggregate function application. An empty Arg means the
// function applies to all rows, e.g. COUNT(*).
type Aggregate struct {
	Function AggregateFunction
	Arg      string
}

// IsRelationshipPath reports whether the field is a dotted reference like
// Account.Name.
func (f *Field) IsRelationshipPath() bool {
	if f.Name == "" {
		return false
	}
	for i := 0; i < len(f.Name); i++ {
		if f.Name[i] == '.' {
			return true
		}
	}
	return false
}

// Condition is a node in a WHERE or HAVING tree. Leaves carry Field/Op and
// either Value or Subquery; internal nodes carry Logical with Left/Right.
type Condition struct {
	// Leaf fields
	Field    string
	Op       Operator
	Value    interface{}
	Subquery *Query

	// Internal-node fields
	Logical LogicalOperator
	Left    *Condition
	Right   *Condition
}

// IsLeaf reports whether the node is a predicate leaf rather than an
// AND/OR combination.
func (c *Condition) IsLeaf() bool {
	return c.Logical == ""
}

// And combines two condition trees with AND, tolerating nil operands.
func And(left, right *Condition) *Condition {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &Condition{Logical: LogicalAnd, Left: left, Right: right}
}

// Or combines two condition trees with OR, tolerating nil operands.
func Or(left, right *Condition) *Condition {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &Condition{Logical: LogicalOr, Left: left, Right: right}
}

// Order is one ORDER BY item.
type Order struct {
	Field     string
	Direction SortDirection
	Nulls     NullsOrder
}

// Join is a relationship join derived from dotted field references.
type Join struct {
	RelationshipName  string
	TargetObject      string
	ForeignKey        string
	PrimaryKey        string
	Type              JoinType
	EstimatedRowCount int64
	Selectivity       float64
}

// IsAggregate reports whether any select-list item is an aggregate.
func (q *Query) IsAggregate() bool {
	for i := range q.Fields {
		if q.Fields[i].Aggregate != nil {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the query. The RLS enforcer rewrites a
// clone so trees already published to caches are never mutated.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	out := &Query{
		FromObject: q.FromObject,
		Where:      q.Where.Clone(),
		Having:     q.Having.Clone(),
	}
	if q.Fields != nil {
		out.Fields = make([]Field, len(q.Fields))
		for i, f := range q.Fields {
			out.Fields[i] = Field{Name: f.Name, Alias: f.Alias}
			if f.Aggregate != nil {
				agg := *f.Aggregate
				out.Fields[i].Aggregate = &agg
			}
			if f.Subquery != nil {
				out.Fields[i].Subquery = f.Subquery.Clone()
			}
		}
	}
	if q.OrderBy != nil {
		out.OrderBy = append([]Order(nil), q.OrderBy...)
	}
	if q.GroupBy != nil {
		out.GroupBy = append([]string(nil), q.GroupBy...)
	}
	if q.Limit != nil {
		v := *q.Limit
		out.Limit = &v
	}
	if q.Offset != nil {
		v := *q.Offset
		out.Offset = &v
	}
	if q.Joins != nil {
		out.Joins = append([]Join(nil), q.Joins...)
	}
	return out
}

// Clone returns a deep copy of the condition tree.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	out := &Condition{
		Field:   c.Field,
		Op:      c.Op,
		Value:   cloneValue(c.Value),
		Logical: c.Logical,
		Left:    c.Left.Clone(),
		Right:   c.Right.Clone(),
	}
	if c.Subquery != nil {
		out.Subquery = c.Subquery.Clone()
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok {
		return append([]interface{}(nil), list...)
	}
	return v
}
