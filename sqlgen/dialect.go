package sqlgen

// Dialect selects the SQL flavor emitted by the generator.
type Dialect string

const (
	// Postgres quotes with double quotes, uses ILIKE and native
	// NULLS FIRST/LAST, and pages with LIMIT/OFFSET.
	Postgres Dialect = "postgres"

	// SQLServer quotes with brackets, emulates NULLS ordering with a CASE
	// key, and pages with OFFSET ... FETCH.
	SQLServer Dialect = "sqlserver"

	// Mock emits bare identifiers. Testing only.
	Mock Dialect = "mock"
)

// Quote wraps an identifier per dialect.
func (d Dialect) Quote(ident string) string {
	switch d {
	case Postgres:
		return `"` + ident + `"`
	case SQLServer:
		return "[" + ident + "]"
	default:
		return ident
	}
}

// LikeOperator returns the case-insensitive pattern operator. Postgres has
// a native one; elsewhere plain LIKE is emitted (SQL Server collations are
// case-insensitive by default).
func (d Dialect) LikeOperator() string {
	if d == Postgres {
		return "ILIKE"
	}
	return "LIKE"
}

// SupportsNullsOrdering reports whether ORDER BY ... NULLS FIRST/LAST is
// native syntax.
func (d Dialect) SupportsNullsOrdering() bool {
	return d != SQLServer
}
