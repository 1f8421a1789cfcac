// Package driver abstracts the relational backend the engine executes
// against. The engine hands a parameterized statement to a Driver and gets
// untyped rows back; parameter substitution is the driver's concern.
package driver

import (
	"context"

	"github.com/guileen/objectql/sqlgen"
	"github.com/guileen/objectql/types"
)

// Driver executes a parameterized statement and returns all rows.
type Driver interface {
	Execute(ctx context.Context, stmt *sqlgen.Statement) ([]types.Row, error)
}

// RowIterator yields rows lazily. Close must be called when done.
type RowIterator interface {
	Next() bool
	Row() types.Row
	Err() error
	Close()
}

// StreamingDriver is implemented by drivers that can yield rows without
// materializing the full result set.
type StreamingDriver interface {
	Driver
	Stream(ctx context.Context, stmt *sqlgen.Statement) (RowIterator, error)
}

// sliceIterator adapts a materialized result set to RowIterator.
type sliceIterator struct {
	rows []types.Row
	pos  int
}

// NewSliceIterator wraps rows in a RowIterator.
func NewSliceIterator(rows []types.Row) RowIterator {
	return &sliceIterator{rows: rows}
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Row() types.Row {
	return it.rows[it.pos-1]
}

func (it *sliceIterator) Err() error { return nil }
func (it *sliceIterator) Close()     {}
