package driver

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guileen/objectql/sqlgen"
	"github.com/guileen/objectql/types"
)

// PGXDriver executes statements against PostgreSQL through a pgx pool.
// The pool is safe for concurrent use; one driver serves all queries.
type PGXDriver struct {
	pool *pgxpool.Pool
}

// NewPGXDriver connects a pool using the given connection string.
func NewPGXDriver(ctx context.Context, connString string) (*PGXDriver, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PGXDriver{pool: pool}, nil
}

// NewPGXDriverFromPool wraps an existing pool.
func NewPGXDriverFromPool(pool *pgxpool.Pool) *PGXDriver {
	return &PGXDriver{pool: pool}
}

// Execute runs the statement and materializes all rows.
func (d *PGXDriver) Execute(ctx context.Context, stmt *sqlgen.Statement) ([]types.Row, error) {
	sql, args := rewritePositional(stmt)
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

// Stream runs the statement and yields rows lazily.
func (d *PGXDriver) Stream(ctx context.Context, stmt *sqlgen.Statement) (RowIterator, error) {
	sql, args := rewritePositional(stmt)
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgxIterator{rows: rows}, nil
}

// Close releases the pool.
func (d *PGXDriver) Close() {
	d.pool.Close()
}

// rewritePositional turns @pN placeholders into pgx's $N+1 positional
// form. Parameters are ordered by construction, so the rewrite is a plain
// index shift. Longer names are replaced first so @p10 is never clobbered
// by the @p1 rewrite.
func rewritePositional(stmt *sqlgen.Statement) (string, []interface{}) {
	sql := stmt.SQL
	args := make([]interface{}, len(stmt.Params))
	for i := len(stmt.Params) - 1; i >= 0; i-- {
		p := stmt.Params[i]
		sql = strings.ReplaceAll(sql, "@"+p.Name, "$"+strconv.Itoa(i+1))
		args[i] = p.Value
	}
	return sql, args
}

func collectRows(rows pgx.Rows) ([]types.Row, error) {
	fields := rows.FieldDescriptions()
	var out []types.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(types.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type pgxIterator struct {
	rows    pgx.Rows
	current types.Row
	err     error
}

func (it *pgxIterator) Next() bool {
	if !it.rows.Next() {
		return false
	}
	values, err := it.rows.Values()
	if err != nil {
		it.err = err
		return false
	}
	fields := it.rows.FieldDescriptions()
	row := make(types.Row, len(fields))
	for i, fd := range fields {
		row[fd.Name] = values[i]
	}
	it.current = row
	return true
}

func (it *pgxIterator) Row() types.Row { return it.current }

func (it *pgxIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *pgxIterator) Close() { it.rows.Close() }
