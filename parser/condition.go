package parser

import (
	"regexp"
	"strings"

	"github.com/guileen/objectql/types"
)

var (
	inRe     = regexp.MustCompile(`(?is)^(\S+)\s+(NOT\s+)?IN\s*\((.*)\)$`)
	isNullRe = regexp.MustCompile(`(?is)^(\S+)\s+IS\s+(NOT\s+)?NULL$`)
	likeRe   = regexp.MustCompile(`(?is)^(\S+)\s+LIKE\s+(.+)$`)
	compRe   = regexp.MustCompile(`(?s)^(\S+)\s*(!=|<>|<=|>=|=|<|>)\s*(.+)$`)
)

// parseCondition parses a WHERE or HAVING expression recursively.
//
// Logical precedence is deliberately left-to-right by first occurrence: the
// leftmost top-level AND or OR is the split point, so "A OR B AND C" parses
// as (A) OR (B AND C). This mirrors the dialect's historical behavior and
// differs from SQL precedence.
func (p *Parser) parseCondition(text string) (*types.Condition, error) {
	text = trimOuterParens(text)
	if text == "" {
		return nil, types.NewParseError("empty condition")
	}

	andPos := keywordPos(text, "AND")
	orPos := keywordPos(text, "OR")

	splitPos, splitLen := -1, 0
	var op types.LogicalOperator
	switch {
	case andPos >= 0 && (orPos < 0 || andPos < orPos):
		splitPos, splitLen, op = andPos, len("AND"), types.LogicalAnd
	case orPos >= 0:
		splitPos, splitLen, op = orPos, len("OR"), types.LogicalOr
	}

	if splitPos > 0 {
		left, err := p.parseCondition(text[:splitPos])
		if err != nil {
			return nil, err
		}
		right, err := p.parseCondition(text[splitPos+splitLen:])
		if err != nil {
			return nil, err
		}
		return &types.Condition{Logical: op, Left: left, Right: right}, nil
	}

	return p.parsePredicate(text)
}

// parsePredicate parses a single leaf predicate.
func (p *Parser) parsePredicate(text string) (*types.Condition, error) {
	if m := inRe.FindStringSubmatch(text); m != nil {
		return p.parseInPredicate(m[1], m[2] != "", m[3])
	}

	if m := isNullRe.FindStringSubmatch(text); m != nil {
		op := types.OpIsNull
		if m[2] != "" {
			op = types.OpIsNotNull
		}
		return &types.Condition{Field: m[1], Op: op}, nil
	}

	if m := likeRe.FindStringSubmatch(text); m != nil {
		return parseLikePredicate(m[1], m[2])
	}

	if m := compRe.FindStringSubmatch(text); m != nil {
		op := types.Operator(m[2])
		if m[2] == "<>" {
			op = types.OpNotEquals
		}
		return &types.Condition{Field: m[1], Op: op, Value: parseLiteral(m[3])}, nil
	}

	return nil, types.NewParseError("unrecognized predicate %q", text)
}

func (p *Parser) parseInPredicate(field string, negated bool, body string) (*types.Condition, error) {
	op := types.OpIn
	if negated {
		op = types.OpNotIn
	}

	body = strings.TrimSpace(body)
	if strings.HasPrefix(strings.ToUpper(body), "SELECT") {
		sub, err := p.Parse(body)
		if err != nil {
			return nil, err
		}
		return &types.Condition{Field: field, Op: op, Subquery: sub}, nil
	}

	items := splitTopLevel(body, ',')
	values := make([]interface{}, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, types.NewParseError("empty value in IN list")
		}
		values = append(values, parseLiteral(item))
	}
	if len(values) == 0 {
		return nil, types.NewParseError("empty IN list for field %s", field)
	}
	return &types.Condition{Field: field, Op: op, Value: values}, nil
}

// parseLikePredicate classifies the LIKE pattern by its % placement:
// %x% becomes CONTAINS, x% becomes STARTS_WITH, %x becomes ENDS_WITH, and
// anything else stays LIKE with the raw pattern.
func parseLikePredicate(field, raw string) (*types.Condition, error) {
	value := parseLiteral(raw)
	pattern, ok := value.(string)
	if !ok {
		return nil, types.NewParseError("LIKE requires a string pattern, got %q", raw)
	}

	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%")
	inner := strings.Trim(pattern, "%")

	switch {
	case leading && trailing && len(pattern) >= 2 && !strings.Contains(inner, "%"):
		return &types.Condition{Field: field, Op: types.OpContains, Value: inner}, nil
	case trailing && !leading && !strings.Contains(inner, "%"):
		return &types.Condition{Field: field, Op: types.OpStartsWith, Value: inner}, nil
	case leading && !trailing && !strings.Contains(inner, "%"):
		return &types.Condition{Field: field, Op: types.OpEndsWith, Value: inner}, nil
	default:
		return &types.Condition{Field: field, Op: types.OpLike, Value: pattern}, nil
	}
}
