package optimizer

import (
	"sort"

	"github.com/guileen/objectql/types"
)

// maxSelectedIndexes caps how many indexes a plan records.
const maxSelectedIndexes = 3

// selectIndexes walks the WHERE tree for indexed predicate fields and
// scores each 1/(selectivity+0.01): the more discriminating the index, the
// higher the score. The top three survive.
func (o *Optimizer) selectIndexes(query *types.Query) []types.Index {
	meta, err := o.metadata.Object(query.FromObject)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var candidates []types.Index
	collectIndexCandidates(query.Where, func(field string, op types.Operator) {
		if seen[field] {
			return
		}
		seen[field] = true

		fm := meta.Field(field)
		if fm == nil || !fm.Indexed {
			return
		}
		candidates = append(candidates, types.Index{
			FieldName:   fm.FieldName,
			ColumnName:  fm.ColumnName,
			Selectivity: fm.Selectivity,
			Score:       1 / (fm.Selectivity + 0.01),
		})
	})

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].FieldName < candidates[j].FieldName
	})
	if len(candidates) > maxSelectedIndexes {
		candidates = candidates[:maxSelectedIndexes]
	}
	return candidates
}

func collectIndexCandidates(c *types.Condition, visit func(field string, op types.Operator)) {
	if c == nil {
		return
	}
	if !c.IsLeaf() {
		collectIndexCandidates(c.Left, visit)
		collectIndexCandidates(c.Right, visit)
		return
	}
	if c.Field != "" {
		visit(c.Field, c.Op)
	}
}
