// Package catalog supplies object metadata and table statistics to the
// query pipeline. The engine consumes the provider interfaces; Registry is
// the bundled in-memory implementation.
package catalog

import (
	"github.com/guileen/objectql/types"
)

// MetadataProvider resolves logical object names to their metadata.
type MetadataProvider interface {
	// Object returns the metadata snapshot for the named object, or a
	// *types.MetadataError if the object is unknown.
	Object(name string) (*types.ObjectMetadata, error)
}

// StatisticsProvider supplies cardinality inputs for cost estimation.
type StatisticsProvider interface {
	// RowCount returns the estimated number of rows in the object's table.
	RowCount(object string) int64

	// FieldSelectivity returns the equality selectivity of a field in
	// [0,1]. Implementations return 0 when the field is unknown; the
	// optimizer substitutes its default.
	FieldSelectivity(object, field string) float64
}
