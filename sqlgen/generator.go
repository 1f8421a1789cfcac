// Package sqlgen emits dialect-specific parameterized SQL from optimized
// plans. Every literal becomes a parameter; the SQL text itself carries no
// input values apart from integer pagination.
package sqlgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/types"
)

// Param is one bound parameter. Names are allocated p0, p1, ... in
// emission order.
type Param struct {
	Name  string
	Value interface{}
}

// Statement is the generated SQL plus its ordered parameters.
type Statement struct {
	SQL    string
	Params []Param
}

// ParamMap returns the parameters keyed by name, for drivers that bind by
// name rather than position.
func (s *Statement) ParamMap() map[string]interface{} {
	m := make(map[string]interface{}, len(s.Params))
	for _, p := range s.Params {
		m[p.Name] = p.Value
	}
	return m
}

// Generator compiles plans to SQL for one dialect.
type Generator struct {
	metadata catalog.MetadataProvider
	dialect  Dialect
}

// New creates a generator.
func New(metadata catalog.MetadataProvider, dialect Dialect) *Generator {
	return &Generator{metadata: metadata, dialect: dialect}
}

// Generate emits the SQL for a plan. Unknown objects, fields, or
// relationships surface as *types.MetadataError.
func (g *Generator) Generate(plan *types.Plan) (*Statement, error) {
	state := &genState{}
	sql, err := g.generateQuery(plan.Query, plan.JoinOrder, state)
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: sql, Params: state.params}, nil
}

// genState carries the parameter allocator across nested subqueries so
// names stay unique within one statement.
type genState struct {
	params []Param
}

func (s *genState) bind(value interface{}) string {
	name := "p" + strconv.Itoa(len(s.params))
	s.params = append(s.params, Param{Name: name, Value: value})
	return "@" + name
}

// scope resolves field references for one query level: the base object is
// t0, joins are t1..tN in join order.
type scope struct {
	dialect  Dialect
	metadata catalog.MetadataProvider
	meta     *types.ObjectMetadata
	joins    []types.Join
}

func (g *Generator) generateQuery(query *types.Query, joinOrder []types.Join, state *genState) (string, error) {
	meta, err := g.metadata.Object(query.FromObject)
	if err != nil {
		return "", err
	}
	if joinOrder == nil {
		joinOrder = query.Joins
	}
	sc := &scope{dialect: g.dialect, metadata: g.metadata, meta: meta, joins: joinOrder}

	var b strings.Builder
	b.WriteString("SELECT ")
	if err := g.writeSelectList(&b, query, sc, state); err != nil {
		return "", err
	}

	b.WriteString(" FROM ")
	b.WriteString(g.dialect.Quote(meta.TableName))
	b.WriteString(" t0")

	if err := g.writeJoins(&b, sc); err != nil {
		return "", err
	}

	if query.Where != nil {
		b.WriteString(" WHERE ")
		if err := g.writeCondition(&b, query.Where, sc, state); err != nil {
			return "", err
		}
	}

	if len(query.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, field := range query.GroupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			expr, err := sc.resolveField(field)
			if err != nil {
				return "", err
			}
			b.WriteString(expr)
		}
	}

	if query.Having != nil {
		b.WriteString(" HAVING ")
		if err := g.writeCondition(&b, query.Having, sc, state); err != nil {
			return "", err
		}
	}

	if len(query.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		if err := g.writeOrderBy(&b, query.OrderBy, sc); err != nil {
			return "", err
		}
	}

	if err := g.writePagination(&b, query); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (g *Generator) writeSelectList(b *strings.Builder, query *types.Query, sc *scope, state *genState) error {
	for i := range query.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		field := &query.Fields[i]
		switch {
		case field.Subquery != nil:
			sub, err := g.generateQuery(field.Subquery, nil, state)
			if err != nil {
				return err
			}
			b.WriteString("(")
			b.WriteString(sub)
			b.WriteString(")")
		case field.Aggregate != nil:
			expr, err := sc.aggregateExpr(field.Aggregate)
			if err != nil {
				return err
			}
			b.WriteString(expr)
		default:
			expr, err := sc.resolveField(field.Name)
			if err != nil {
				return err
			}
			b.WriteString(expr)
		}
		if field.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(g.dialect.Quote(field.Alias))
		}
	}
	return nil
}

func (g *Generator) writeJoins(b *strings.Builder, sc *scope) error {
	for i, join := range sc.joins {
		target, err := g.metadata.Object(join.TargetObject)
		if err != nil {
			return err
		}
		alias := types.JoinAlias(i + 1)

		switch join.Type {
		case types.JoinInner:
			b.WriteString(" INNER JOIN ")
		case types.JoinRight:
			b.WriteString(" RIGHT JOIN ")
		default:
			b.WriteString(" LEFT JOIN ")
		}
		b.WriteString(g.dialect.Quote(target.TableName))
		b.WriteString(" ")
		b.WriteString(alias)
		b.WriteString(" ON t0.")
		b.WriteString(g.dialect.Quote(join.ForeignKey))
		b.WriteString(" = ")
		b.WriteString(alias)
		b.WriteString(".")
		b.WriteString(g.dialect.Quote(join.PrimaryKey))
	}
	return nil
}

func (g *Generator) writeCondition(b *strings.Builder, c *types.Condition, sc *scope, state *genState) error {
	if !c.IsLeaf() {
		b.WriteString("(")
		if err := g.writeCondition(b, c.Left, sc, state); err != nil {
			return err
		}
		b.WriteString(" ")
		b.WriteString(string(c.Logical))
		b.WriteString(" ")
		if err := g.writeCondition(b, c.Right, sc, state); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	}

	expr, err := sc.resolveExpr(c.Field)
	if err != nil {
		return err
	}

	switch c.Op {
	case types.OpEquals, types.OpNotEquals, types.OpLessThan, types.OpLessEqual,
		types.OpGreaterThan, types.OpGreaterEqual:
		op := string(c.Op)
		if c.Op == types.OpNotEquals {
			op = "<>"
		}
		fmt.Fprintf(b, "%s %s %s", expr, op, state.bind(c.Value))

	case types.OpLike:
		fmt.Fprintf(b, "%s %s %s", expr, g.dialect.LikeOperator(), state.bind(c.Value))
	case types.OpContains:
		fmt.Fprintf(b, "%s %s %s", expr, g.dialect.LikeOperator(), state.bind(patternValue("%", c.Value, "%")))
	case types.OpStartsWith:
		fmt.Fprintf(b, "%s %s %s", expr, g.dialect.LikeOperator(), state.bind(patternValue("", c.Value, "%")))
	case types.OpEndsWith:
		fmt.Fprintf(b, "%s %s %s", expr, g.dialect.LikeOperator(), state.bind(patternValue("%", c.Value, "")))

	case types.OpIn, types.OpNotIn:
		b.WriteString(expr)
		if c.Op == types.OpNotIn {
			b.WriteString(" NOT IN (")
		} else {
			b.WriteString(" IN (")
		}
		if c.Subquery != nil {
			sub, err := g.generateQuery(c.Subquery, nil, state)
			if err != nil {
				return err
			}
			b.WriteString(sub)
		} else {
			list, _ := c.Value.([]interface{})
			if len(list) == 0 {
				// An empty list matches nothing; NULL keeps the SQL valid.
				b.WriteString("NULL")
			}
			for i, item := range list {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(state.bind(item))
			}
		}
		b.WriteString(")")

	case types.OpIsNull:
		b.WriteString(expr)
		b.WriteString(" IS NULL")
	case types.OpIsNotNull:
		b.WriteString(expr)
		b.WriteString(" IS NOT NULL")

	default:
		return types.NewParseError("unsupported operator %q", c.Op)
	}
	return nil
}

func patternValue(prefix string, value interface{}, suffix string) string {
	return prefix + fmt.Sprintf("%v", value) + suffix
}

func (g *Generator) writeOrderBy(b *strings.Builder, orders []types.Order, sc *scope) error {
	for i, order := range orders {
		if i > 0 {
			b.WriteString(", ")
		}
		expr, err := sc.resolveExpr(order.Field)
		if err != nil {
			return err
		}

		if g.dialect.SupportsNullsOrdering() {
			fmt.Fprintf(b, "%s %s NULLS %s", expr, order.Direction, order.Nulls)
			continue
		}

		// SQL Server rejects NULLS FIRST/LAST; sort on a synthesized null
		// key first, then the value.
		if order.Nulls == types.NullsFirst {
			fmt.Fprintf(b, "CASE WHEN %s IS NULL THEN 0 ELSE 1 END, %s %s", expr, expr, order.Direction)
		} else {
			fmt.Fprintf(b, "CASE WHEN %s IS NULL THEN 1 ELSE 0 END, %s %s", expr, expr, order.Direction)
		}
	}
	return nil
}

func (g *Generator) writePagination(b *strings.Builder, query *types.Query) error {
	if query.Limit == nil && query.Offset == nil {
		return nil
	}

	if g.dialect != SQLServer {
		if query.Limit != nil {
			fmt.Fprintf(b, " LIMIT %d", *query.Limit)
		}
		if query.Offset != nil {
			fmt.Fprintf(b, " OFFSET %d", *query.Offset)
		}
		return nil
	}

	// OFFSET/FETCH requires an ORDER BY.
	if len(query.OrderBy) == 0 {
		b.WriteString(" ORDER BY (SELECT NULL)")
	}
	offset := 0
	if query.Offset != nil {
		offset = *query.Offset
	}
	fmt.Fprintf(b, " OFFSET %d ROWS", offset)
	if query.Limit != nil {
		fmt.Fprintf(b, " FETCH NEXT %d ROWS ONLY", *query.Limit)
	}
	return nil
}

var aggregateExprRe = regexp.MustCompile(`(?i)^(COUNT|SUM|AVG|MIN|MAX)\s*\(\s*(DISTINCT\s+)?(.*?)\s*\)$`)

// resolveExpr resolves a field reference or an inline aggregate expression
// such as COUNT(Id) in a HAVING clause.
func (sc *scope) resolveExpr(field string) (string, error) {
	if m := aggregateExprRe.FindStringSubmatch(field); m != nil {
		agg := &types.Aggregate{Function: types.AggregateFunction(strings.ToUpper(m[1])), Arg: m[3]}
		if m[2] != "" {
			agg.Function = types.AggCountDistinct
		}
		if agg.Arg == "*" {
			agg.Arg = ""
		}
		return sc.aggregateExpr(agg)
	}
	return sc.resolveField(field)
}

func (sc *scope) aggregateExpr(agg *types.Aggregate) (string, error) {
	if agg.Arg == "" {
		if agg.Function == types.AggCount {
			return "COUNT(*)", nil
		}
		return "", &types.MetadataError{Object: sc.meta.ObjectName, Detail: string(agg.Function) + " requires a field"}
	}

	arg, err := sc.resolveField(agg.Arg)
	if err != nil {
		return "", err
	}
	if agg.Function == types.AggCountDistinct {
		return "COUNT(DISTINCT " + arg + ")", nil
	}
	return string(agg.Function) + "(" + arg + ")", nil
}

// resolveField maps a field name to its alias-qualified quoted column. A
// dotted reference resolves through the named relationship's position in
// the join order.
func (sc *scope) resolveField(field string) (string, error) {
	dot := strings.IndexByte(field, '.')
	if dot < 0 {
		fm := sc.meta.Field(field)
		if fm == nil {
			return "", &types.MetadataError{Object: sc.meta.ObjectName, Detail: "unknown field " + field}
		}
		return "t0." + sc.dialect.Quote(fm.ColumnName), nil
	}

	relName, rest := field[:dot], field[dot+1:]
	for i, join := range sc.joins {
		if !strings.EqualFold(join.RelationshipName, relName) {
			continue
		}
		target, err := sc.metadata.Object(join.TargetObject)
		if err != nil {
			return "", err
		}
		fm := target.Field(rest)
		if fm == nil {
			return "", &types.MetadataError{Object: join.TargetObject, Detail: "unknown field " + rest}
		}
		return types.JoinAlias(i+1) + "." + sc.dialect.Quote(fm.ColumnName), nil
	}
	return "", &types.MetadataError{Object: sc.meta.ObjectName, Detail: "unresolved relationship " + relName}
}
