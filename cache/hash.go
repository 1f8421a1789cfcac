// Package cache provides the plan cache, the result cache, and the stable
// query hashing both are keyed by.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/guileen/objectql/types"
)

// QueryHash computes the cache key for a query under a security context.
// The hash is a SHA-256 over a deterministic serialization, so it is stable
// across process restarts. When RLS is enabled the caller's identity and
// sorted roles are part of the key; two users never share an RLS plan.
func QueryHash(query *types.Query, sctx *types.SecurityContext, rlsEnabled bool) string {
	var b strings.Builder
	writeQuery(&b, query)

	if rlsEnabled && sctx != nil {
		b.WriteString("|user:")
		b.WriteString(sctx.UserID)
		roles := append([]string(nil), sctx.Roles...)
		sort.Strings(roles)
		b.WriteString("|roles:")
		b.WriteString(strings.Join(roles, ","))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// PlanID computes a stable identifier over the normalized query shape
// alone, independent of the caller.
func PlanID(query *types.Query) string {
	var b strings.Builder
	writeQuery(&b, query)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

func writeQuery(b *strings.Builder, q *types.Query) {
	if q == nil {
		b.WriteString("<nil>")
		return
	}
	b.WriteString("from:")
	b.WriteString(q.FromObject)

	b.WriteString("|fields:")
	for i := range q.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		writeField(b, &q.Fields[i])
	}

	b.WriteString("|where:")
	writeCondition(b, q.Where)

	b.WriteString("|order:")
	for i, o := range q.OrderBy {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(b, "%s %s NULLS %s", o.Field, o.Direction, o.Nulls)
	}

	b.WriteString("|group:")
	b.WriteString(strings.Join(q.GroupBy, ","))

	b.WriteString("|having:")
	writeCondition(b, q.Having)

	b.WriteString("|limit:")
	if q.Limit != nil {
		b.WriteString(strconv.Itoa(*q.Limit))
	}
	b.WriteString("|offset:")
	if q.Offset != nil {
		b.WriteString(strconv.Itoa(*q.Offset))
	}
}

func writeField(b *strings.Builder, f *types.Field) {
	switch {
	case f.Subquery != nil:
		b.WriteByte('(')
		writeQuery(b, f.Subquery)
		b.WriteByte(')')
	case f.Aggregate != nil:
		b.WriteString(string(f.Aggregate.Function))
		b.WriteByte('(')
		b.WriteString(f.Aggregate.Arg)
		b.WriteByte(')')
	default:
		b.WriteString(f.Name)
	}
	if f.Alias != "" {
		b.WriteString(" as ")
		b.WriteString(f.Alias)
	}
}

func writeCondition(b *strings.Builder, c *types.Condition) {
	if c == nil {
		return
	}
	if !c.IsLeaf() {
		b.WriteByte('(')
		writeCondition(b, c.Left)
		b.WriteByte(' ')
		b.WriteString(string(c.Logical))
		b.WriteByte(' ')
		writeCondition(b, c.Right)
		b.WriteByte(')')
		return
	}

	b.WriteString(c.Field)
	b.WriteByte(' ')
	b.WriteString(string(c.Op))
	b.WriteByte(' ')
	switch {
	case c.Subquery != nil:
		b.WriteByte('(')
		writeQuery(b, c.Subquery)
		b.WriteByte(')')
	case c.Value != nil:
		b.WriteString(canonicalValue(c.Value))
	}
}

// canonicalValue serializes a literal for hashing. IN lists are sorted so
// permuted lists share a cache entry instead of fragmenting the cache.
func canonicalValue(v interface{}) string {
	if list, ok := v.([]interface{}); ok {
		items := make([]string, len(list))
		for i, item := range list {
			items[i] = canonicalValue(item)
		}
		sort.Strings(items)
		return "[" + strings.Join(items, ",") + "]"
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}

// collectObjects gathers every object name a query touches, including
// subqueries, for result-cache invalidation.
func collectObjects(q *types.Query, into map[string]bool) {
	if q == nil {
		return
	}
	into[q.FromObject] = true
	for i := range q.Fields {
		collectObjects(q.Fields[i].Subquery, into)
	}
	collectConditionObjects(q.Where, into)
	collectConditionObjects(q.Having, into)
}

func collectConditionObjects(c *types.Condition, into map[string]bool) {
	if c == nil {
		return
	}
	if !c.IsLeaf() {
		collectConditionObjects(c.Left, into)
		collectConditionObjects(c.Right, into)
		return
	}
	collectObjects(c.Subquery, into)
}

// QueryObjects returns the sorted set of object names a query touches.
func QueryObjects(q *types.Query) []string {
	set := make(map[string]bool)
	collectObjects(q, set)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
