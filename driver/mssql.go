package driver

import (
	"context"
	"database/sql"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/guileen/objectql/sqlgen"
	"github.com/guileen/objectql/types"
)

// SQLServerDriver executes statements against SQL Server via database/sql.
// The generator's @pN placeholders are native go-mssqldb named parameters,
// so no rewriting is needed.
type SQLServerDriver struct {
	db *sql.DB
}

// NewSQLServerDriver opens a connection pool for the given DSN.
func NewSQLServerDriver(dsn string) (*SQLServerDriver, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	return &SQLServerDriver{db: db}, nil
}

// NewSQLServerDriverFromDB wraps an existing database handle.
func NewSQLServerDriverFromDB(db *sql.DB) *SQLServerDriver {
	return &SQLServerDriver{db: db}
}

// Execute runs the statement and materializes all rows.
func (d *SQLServerDriver) Execute(ctx context.Context, stmt *sqlgen.Statement) ([]types.Row, error) {
	args := make([]interface{}, len(stmt.Params))
	for i, p := range stmt.Params {
		args[i] = sql.Named(p.Name, p.Value)
	}

	rows, err := d.db.QueryContext(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []types.Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scans := make([]interface{}, len(columns))
		for i := range values {
			scans[i] = &values[i]
		}
		if err := rows.Scan(scans...); err != nil {
			return nil, err
		}
		row := make(types.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (d *SQLServerDriver) Close() error {
	return d.db.Close()
}
