package driver

import (
	"context"
	"sync"

	"github.com/guileen/objectql/sqlgen"
	"github.com/guileen/objectql/types"
)

// Call records one statement handed to the mock.
type Call struct {
	SQL    string
	Params []sqlgen.Param
}

// MockDriver returns scripted rows and records every call. Used in tests
// and by the demo CLI.
type MockDriver struct {
	mu sync.Mutex

	// Rows are returned for every Execute unless a handler is set.
	Rows []types.Row
	// Err, when set, fails every call.
	Err error
	// Handler, when set, computes the response per statement.
	Handler func(stmt *sqlgen.Statement) ([]types.Row, error)

	calls []Call
}

// Execute implements Driver.
func (d *MockDriver) Execute(ctx context.Context, stmt *sqlgen.Statement) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.calls = append(d.calls, Call{SQL: stmt.SQL, Params: stmt.Params})
	handler := d.Handler
	rows, err := d.Rows, d.Err
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if handler != nil {
		return handler(stmt)
	}
	return rows, nil
}

// Stream implements StreamingDriver.
func (d *MockDriver) Stream(ctx context.Context, stmt *sqlgen.Statement) (RowIterator, error) {
	rows, err := d.Execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return NewSliceIterator(rows), nil
}

// Calls returns the recorded statements.
func (d *MockDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// LastCall returns the most recent statement, or nil.
func (d *MockDriver) LastCall() *Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return nil
	}
	call := d.calls[len(d.calls)-1]
	return &call
}
