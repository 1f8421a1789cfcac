package engine

import (
	"context"
	"sync"

	"github.com/guileen/objectql/types"
)

// childSelect is a select-list subquery that targets a child relationship
// of the base object. These are executed as separate child fetches after
// the main query rather than inline SQL subqueries.
type childSelect struct {
	rel   types.Relationship
	query *types.Query
	name  string // result key: alias or relationship name
}

// splitChildSelects removes child-relationship subqueries from the plan's
// select list and returns a main plan without them. Scalar subqueries over
// ordinary objects stay inline.
func (e *Engine) splitChildSelects(plan *types.Plan) (*types.Plan, []childSelect, error) {
	query := plan.Query

	var children []childSelect
	for i := range query.Fields {
		f := &query.Fields[i]
		if f.Subquery == nil {
			continue
		}
		meta, err := e.metadata.Object(query.FromObject)
		if err != nil {
			return nil, nil, err
		}
		rel := meta.Relationship(f.Subquery.FromObject)
		if rel == nil || rel.Kind != types.RelationshipChild {
			continue
		}
		name := f.Alias
		if name == "" {
			name = rel.Name
		}
		children = append(children, childSelect{rel: *rel, query: f.Subquery, name: name})
	}
	if len(children) == 0 {
		return plan, nil, nil
	}

	main := query.Clone()
	fields := main.Fields[:0]
	for _, f := range main.Fields {
		if f.Subquery != nil {
			meta, _ := e.metadata.Object(main.FromObject)
			if rel := meta.Relationship(f.Subquery.FromObject); rel != nil && rel.Kind == types.RelationshipChild {
				continue
			}
		}
		fields = append(fields, f)
	}
	main.Fields = fields

	// The merge joins child rows back on the parent key; make sure the
	// main select carries it.
	meta, err := e.metadata.Object(main.FromObject)
	if err != nil {
		return nil, nil, err
	}
	for _, child := range children {
		keyField := fieldByColumn(meta, child.rel.ReferencedKey)
		if keyField == "" {
			return nil, nil, &types.MetadataError{Object: main.FromObject, Detail: "no field for key column " + child.rel.ReferencedKey}
		}
		if !selectsField(main.Fields, keyField) {
			main.Fields = append(main.Fields, types.Field{Name: keyField})
		}
	}

	mainPlan := *plan
	mainPlan.Query = main
	return &mainPlan, children, nil
}

// loadChildren fetches each child relationship and merges the rows onto
// the parents, keyed by the relationship's foreign key. Fetches run
// concurrently up to the plan's parallel degree; the first failure cancels
// the siblings and fails the call. Parent row order is never changed.
func (e *Engine) loadChildren(ctx context.Context, plan *types.Plan, parents []types.Row, children []childSelect) error {
	degree := 1
	if e.config.EnableParallel {
		degree = plan.ParallelDegree
		if degree <= 0 {
			degree = e.config.MaxParallelDegree
		}
		if degree <= 0 {
			degree = 1
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type childResult struct {
		child   childSelect
		grouped map[interface{}][]types.Row
	}

	results := make([]childResult, len(children))
	errs := make([]error, len(children))
	semaphore := make(chan struct{}, degree)
	var wg sync.WaitGroup

	for i, child := range children {
		wg.Add(1)
		go func(i int, child childSelect) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			grouped, err := e.fetchChild(ctx, child, parents)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = childResult{child: child, grouped: grouped}
		}(i, child)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	// Merge sequentially so parent rows are mutated from one goroutine.
	for _, result := range results {
		keyColumn := result.child.rel.ReferencedKey
		for _, parent := range parents {
			key, ok := parent[keyColumn]
			if !ok {
				continue
			}
			parent[result.child.name] = result.grouped[key]
		}
	}
	return nil
}

// fetchChild runs one child query restricted to the parents' keys and
// groups the returned rows by foreign key.
func (e *Engine) fetchChild(ctx context.Context, child childSelect, parents []types.Row) (map[interface{}][]types.Row, error) {
	keys := parentKeys(parents, child.rel.ReferencedKey)
	if len(keys) == 0 {
		return nil, nil
	}

	target, err := e.metadata.Object(child.rel.TargetObject)
	if err != nil {
		return nil, err
	}
	fkField := fieldByColumn(target, child.rel.ForeignKey)
	if fkField == "" {
		return nil, &types.MetadataError{Object: child.rel.TargetObject, Detail: "no field for key column " + child.rel.ForeignKey}
	}

	query := child.query.Clone()
	query.FromObject = child.rel.TargetObject
	if !selectsField(query.Fields, fkField) {
		query.Fields = append(query.Fields, types.Field{Name: fkField})
	}
	query.Where = types.And(query.Where, &types.Condition{
		Field: fkField,
		Op:    types.OpIn,
		Value: keys,
	})

	plan := e.optimizer.Optimize(query)
	stmt, err := e.generator.Generate(plan)
	if err != nil {
		return nil, err
	}

	rows, err := e.driver.Execute(ctx, stmt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.SQLError{SQL: stmt.SQL, Err: err}
	}

	grouped := make(map[interface{}][]types.Row)
	for _, row := range rows {
		grouped[row[child.rel.ForeignKey]] = append(grouped[row[child.rel.ForeignKey]], row)
	}
	return grouped, nil
}

func parentKeys(parents []types.Row, column string) []interface{} {
	seen := make(map[interface{}]bool, len(parents))
	keys := make([]interface{}, 0, len(parents))
	for _, parent := range parents {
		key, ok := parent[column]
		if !ok || key == nil || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

func selectsField(fields []types.Field, name string) bool {
	for i := range fields {
		if fields[i].Name == name {
			return true
		}
	}
	return false
}

func fieldByColumn(meta *types.ObjectMetadata, column string) string {
	for _, f := range meta.Fields {
		if f.ColumnName == column {
			return f.FieldName
		}
	}
	return ""
}
