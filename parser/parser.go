// Package parser turns DSQL text into a query tree. It is a pragmatic
// top-level clause extractor: clauses are located at paren-depth 0 and then
// sub-parsed, which keeps nested subqueries containing clause keywords
// intact.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/logger"
	"github.com/guileen/objectql/types"
)

// Parser parses DSQL statements. A metadata provider, when present, is
// used to promote dotted select fields into relationship joins; parsing
// itself never requires metadata.
type Parser struct {
	metadata catalog.MetadataProvider
}

// New creates a parser. metadata may be nil.
func New(metadata catalog.MetadataProvider) *Parser {
	return &Parser{metadata: metadata}
}

var aggregateRe = regexp.MustCompile(`(?is)^(COUNT|SUM|AVG|MIN|MAX)\s*\(\s*(.*?)\s*\)\s*(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*)?\s*$`)

// Parse parses a DSQL statement into a query tree. It has no side effects:
// repeated calls on the same text yield equal trees.
func (p *Parser) Parse(text string) (*types.Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, types.NewParseError("empty query")
	}
	if !balancedParens(text) {
		return nil, types.NewParseError("unbalanced parentheses")
	}

	clauses, err := extractClauses(text)
	if err != nil {
		return nil, err
	}

	query := &types.Query{FromObject: clauses.from}

	if query.Fields, err = p.parseSelectList(clauses.selectList); err != nil {
		return nil, err
	}
	if clauses.where != "" {
		if query.Where, err = p.parseCondition(clauses.where); err != nil {
			return nil, err
		}
	}
	if clauses.groupBy != "" {
		query.GroupBy = parseGroupBy(clauses.groupBy)
	}
	if clauses.having != "" {
		if len(query.GroupBy) == 0 && !query.IsAggregate() {
			return nil, types.NewParseError("HAVING requires GROUP BY or an aggregate select")
		}
		if query.Having, err = p.parseCondition(clauses.having); err != nil {
			return nil, err
		}
	}
	if clauses.orderBy != "" {
		if query.OrderBy, err = parseOrderBy(clauses.orderBy); err != nil {
			return nil, err
		}
	}
	if clauses.limit != "" {
		n, err := strconv.Atoi(strings.TrimSpace(clauses.limit))
		if err != nil || n < 0 {
			return nil, types.NewParseError("invalid LIMIT %q", clauses.limit)
		}
		query.Limit = &n
	}
	if clauses.offset != "" {
		n, err := strconv.Atoi(strings.TrimSpace(clauses.offset))
		if err != nil || n < 0 {
			return nil, types.NewParseError("invalid OFFSET %q", clauses.offset)
		}
		query.Offset = &n
	}

	p.resolveRelationships(query)
	return query, nil
}

// clauseSet holds the raw text of each top-level clause.
type clauseSet struct {
	selectList string
	from       string
	where      string
	groupBy    string
	having     string
	orderBy    string
	limit      string
	offset     string
}

// clause order is fixed; each keyword must appear after the previous one.
var clauseKeywords = []string{"WHERE", "GROUP BY", "HAVING", "ORDER BY", "LIMIT", "OFFSET"}

func extractClauses(text string) (*clauseSet, error) {
	selPos := keywordPos(text, "SELECT")
	if selPos != 0 {
		return nil, &types.ParseError{Reason: "query must start with SELECT", Position: 0}
	}
	fromPos := keywordPos(text, "FROM")
	if fromPos < 0 {
		return nil, types.NewParseError("missing FROM clause")
	}

	cs := &clauseSet{selectList: strings.TrimSpace(text[len("SELECT"):fromPos])}
	if cs.selectList == "" {
		return nil, &types.ParseError{Reason: "empty select list", Position: len("SELECT")}
	}

	rest := text[fromPos+len("FROM"):]
	end := len(rest)
	for i := len(clauseKeywords) - 1; i >= 0; i-- {
		pos := keywordPos(rest, clauseKeywords[i])
		if pos < 0 || pos >= end {
			continue
		}
		body := strings.TrimSpace(rest[pos+len(clauseKeywords[i]) : end])
		switch clauseKeywords[i] {
		case "WHERE":
			cs.where = body
		case "GROUP BY":
			cs.groupBy = body
		case "HAVING":
			cs.having = body
		case "ORDER BY":
			cs.orderBy = body
		case "LIMIT":
			cs.limit = body
		case "OFFSET":
			cs.offset = body
		}
		end = pos
	}

	cs.from = strings.TrimSpace(rest[:end])
	if cs.from == "" {
		return nil, types.NewParseError("missing object name after FROM")
	}
	if len(strings.Fields(cs.from)) != 1 {
		return nil, types.NewParseError("invalid FROM clause %q", cs.from)
	}
	return cs, nil
}

// parseSelectList splits the select list at top-level commas and parses
// each item as a subquery, an aggregate, or a field reference.
func (p *Parser) parseSelectList(list string) ([]types.Field, error) {
	items := splitTopLevel(list, ',')
	fields := make([]types.Field, 0, len(items))

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, types.NewParseError("empty select list item")
		}

		field, err := p.parseSelectItem(item)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *field)
	}
	return fields, nil
}

func (p *Parser) parseSelectItem(item string) (*types.Field, error) {
	// Nested subquery: (SELECT ...) [alias]
	if strings.HasPrefix(item, "(") && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(item[1:])), "SELECT") {
		inner, alias, err := splitSubquery(item)
		if err != nil {
			return nil, err
		}
		sub, err := p.Parse(inner)
		if err != nil {
			return nil, err
		}
		return &types.Field{Subquery: sub, Alias: alias}, nil
	}

	// Aggregate: FN(arg) [AS alias]
	if m := aggregateRe.FindStringSubmatch(item); m != nil {
		agg, err := parseAggregate(m[1], m[2])
		if err != nil {
			return nil, err
		}
		return &types.Field{Aggregate: agg, Alias: m[3]}, nil
	}

	// Plain or dotted field reference with optional alias.
	tokens := strings.Fields(item)
	field := &types.Field{Name: tokens[0]}
	switch len(tokens) {
	case 1:
	case 2:
		field.Alias = tokens[1]
	case 3:
		if !strings.EqualFold(tokens[1], "AS") {
			return nil, types.NewParseError("invalid select item %q", item)
		}
		field.Alias = tokens[2]
	default:
		return nil, types.NewParseError("invalid select item %q", item)
	}
	return field, nil
}

func parseAggregate(fn, arg string) (*types.Aggregate, error) {
	function := types.AggregateFunction(strings.ToUpper(fn))
	arg = strings.TrimSpace(arg)

	if function == types.AggCount {
		if rest, ok := stripPrefixFold(arg, "DISTINCT"); ok {
			rest = strings.TrimSpace(rest)
			if rest == "" {
				return nil, types.NewParseError("COUNT(DISTINCT) requires a field")
			}
			return &types.Aggregate{Function: types.AggCountDistinct, Arg: rest}, nil
		}
	}
	if arg == "*" {
		arg = ""
	}
	if arg == "" && function != types.AggCount {
		return nil, types.NewParseError("%s requires a field argument", function)
	}
	return &types.Aggregate{Function: function, Arg: arg}, nil
}

func stripPrefixFold(s, prefix string) (string, bool) {
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) && isSpace(s[len(prefix)]) {
		return s[len(prefix):], true
	}
	return s, false
}

// splitSubquery strips the wrapping parentheses of a (SELECT ...) item and
// returns the inner text plus any trailing alias token.
func splitSubquery(item string) (inner, alias string, err error) {
	depth := 0
	var quote byte
	for i := 0; i < len(item); i++ {
		ch := item[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				inner = strings.TrimSpace(item[1:i])
				tail := strings.Fields(item[i+1:])
				switch len(tail) {
				case 0:
				case 1:
					alias = tail[0]
				case 2:
					if !strings.EqualFold(tail[0], "AS") {
						return "", "", types.NewParseError("invalid subquery alias %q", item[i+1:])
					}
					alias = tail[1]
				default:
					return "", "", types.NewParseError("invalid subquery alias %q", item[i+1:])
				}
				return inner, alias, nil
			}
		}
	}
	return "", "", types.NewParseError("unterminated subquery %q", item)
}

func parseGroupBy(text string) []string {
	parts := splitTopLevel(text, ',')
	groups := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			groups = append(groups, part)
		}
	}
	return groups
}

func parseOrderBy(text string) ([]types.Order, error) {
	parts := splitTopLevel(text, ',')
	orders := make([]types.Order, 0, len(parts))

	for _, part := range parts {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			return nil, types.NewParseError("empty ORDER BY item")
		}
		order := types.Order{Field: tokens[0], Direction: types.SortAsc, Nulls: types.NullsLast}
		for i := 1; i < len(tokens); i++ {
			switch strings.ToUpper(tokens[i]) {
			case "ASC":
				order.Direction = types.SortAsc
			case "DESC":
				order.Direction = types.SortDesc
			case "NULLS":
				if i+1 >= len(tokens) {
					return nil, types.NewParseError("NULLS requires FIRST or LAST")
				}
				i++
				switch strings.ToUpper(tokens[i]) {
				case "FIRST":
					order.Nulls = types.NullsFirst
				case "LAST":
					order.Nulls = types.NullsLast
				default:
					return nil, types.NewParseError("NULLS requires FIRST or LAST, got %q", tokens[i])
				}
			default:
				return nil, types.NewParseError("unexpected ORDER BY token %q", tokens[i])
			}
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// resolveRelationships promotes the leading segment of each dotted select
// field into a join, deduplicated by relationship name. A relationship
// missing from metadata is only a warning here; generation raises if the
// field is actually referenced.
func (p *Parser) resolveRelationships(query *types.Query) {
	if p.metadata == nil {
		return
	}
	meta, err := p.metadata.Object(query.FromObject)
	if err != nil {
		logger.Warn("unknown object during relationship resolution", "object", query.FromObject)
		return
	}

	seen := make(map[string]bool, len(query.Joins))
	for _, j := range query.Joins {
		seen[j.RelationshipName] = true
	}

	for i := range query.Fields {
		f := &query.Fields[i]
		if !f.IsRelationshipPath() {
			continue
		}
		relName := f.Name[:strings.IndexByte(f.Name, '.')]
		if seen[relName] {
			continue
		}
		rel := meta.Relationship(relName)
		if rel == nil {
			logger.Warn("unresolved relationship in select list",
				"object", query.FromObject, "relationship", relName)
			continue
		}
		seen[relName] = true

		join := types.Join{
			RelationshipName: rel.Name,
			TargetObject:     rel.TargetObject,
			ForeignKey:       rel.ForeignKey,
			PrimaryKey:       rel.ReferencedKey,
			Type:             types.JoinLeft,
			Selectivity:      1.0,
		}
		if target, err := p.metadata.Object(rel.TargetObject); err == nil {
			join.EstimatedRowCount = target.EstimatedRowCount
		}
		query.Joins = append(query.Joins, join)
	}
}
