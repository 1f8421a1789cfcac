package sqlgen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/optimizer"
	"github.com/guileen/objectql/parser"
	"github.com/guileen/objectql/types"
)

// generate parses, optimizes, and generates in one step.
func generate(t *testing.T, dialect Dialect, dsql string) *Statement {
	t.Helper()
	registry := catalog.NewDemoRegistry()

	query, err := parser.New(registry).Parse(dsql)
	require.NoError(t, err)
	plan := optimizer.New(registry, registry).Optimize(query)

	stmt, err := New(registry, dialect).Generate(plan)
	require.NoError(t, err)
	return stmt
}

func TestGenerate_PostgresSimple(t *testing.T) {
	stmt := generate(t, Postgres, "SELECT Id, Name FROM Account WHERE Name = 'Acme'")

	assert.Equal(t,
		`SELECT t0."id", t0."name" FROM "accounts" t0 WHERE t0."name" = @p0`,
		stmt.SQL)
	require.Len(t, stmt.Params, 1)
	assert.Equal(t, "p0", stmt.Params[0].Name)
	assert.Equal(t, "Acme", stmt.Params[0].Value)
}

func TestGenerate_DottedRelationship(t *testing.T) {
	stmt := generate(t, Postgres, "SELECT Id, Account.Name FROM Contact")

	assert.Contains(t, stmt.SQL, `LEFT JOIN "accounts" t1 ON t0."account_id" = t1."id"`)
	assert.Contains(t, stmt.SQL, `t1."name"`)
	assert.Contains(t, stmt.SQL, `FROM "contacts" t0`)
}

func TestGenerate_AggregateGroupHaving(t *testing.T) {
	stmt := generate(t, Postgres,
		"SELECT StageName, COUNT(Id) FROM Opportunity GROUP BY StageName HAVING COUNT(Id) > 5")

	assert.Equal(t,
		`SELECT t0."stage_name", COUNT(t0."id") FROM "opportunities" t0 GROUP BY t0."stage_name" HAVING COUNT(t0."id") > @p0`,
		stmt.SQL)
	require.Len(t, stmt.Params, 1)
	assert.Equal(t, int64(5), stmt.Params[0].Value)
}

func TestGenerate_CountDistinct(t *testing.T) {
	stmt := generate(t, Postgres, "SELECT COUNT(DISTINCT Email) FROM Contact")
	assert.Contains(t, stmt.SQL, `COUNT(DISTINCT t0."email")`)
}

func TestGenerate_MSSQLPagingWithoutOrder(t *testing.T) {
	stmt := generate(t, SQLServer, "SELECT Id FROM Account LIMIT 10")

	assert.Contains(t, stmt.SQL, "ORDER BY (SELECT NULL)")
	assert.Contains(t, stmt.SQL, "OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY")
	assert.Contains(t, stmt.SQL, "[accounts]")
}

func TestGenerate_MSSQLOffsetOnly(t *testing.T) {
	stmt := generate(t, SQLServer, "SELECT Id FROM Account ORDER BY Name OFFSET 20")

	assert.Contains(t, stmt.SQL, "OFFSET 20 ROWS")
	assert.NotContains(t, stmt.SQL, "FETCH NEXT")
}

func TestGenerate_PostgresPaging(t *testing.T) {
	stmt := generate(t, Postgres, "SELECT Id FROM Account LIMIT 10 OFFSET 20")
	assert.True(t, strings.HasSuffix(stmt.SQL, "LIMIT 10 OFFSET 20"), stmt.SQL)
}

func TestGenerate_LikeVariants(t *testing.T) {
	tests := []struct {
		dsql  string
		param string
	}{
		{"SELECT Id FROM Account WHERE Name LIKE '%corp%'", "%corp%"},
		{"SELECT Id FROM Account WHERE Name LIKE 'Acme%'", "Acme%"},
		{"SELECT Id FROM Account WHERE Name LIKE '%Inc'", "%Inc"},
	}

	for _, tt := range tests {
		stmt := generate(t, Postgres, tt.dsql)
		assert.Contains(t, stmt.SQL, `t0."name" ILIKE @p0`, tt.dsql)
		assert.Equal(t, tt.param, stmt.Params[0].Value, tt.dsql)
	}

	// Other dialects keep plain LIKE.
	stmt := generate(t, SQLServer, "SELECT Id FROM Account WHERE Name LIKE '%corp%'")
	assert.Contains(t, stmt.SQL, "LIKE @p0")
}

func TestGenerate_InList(t *testing.T) {
	stmt := generate(t, Postgres, "SELECT Id FROM Account WHERE Industry IN ('Tech', 'Retail')")

	assert.Contains(t, stmt.SQL, `t0."industry" IN (@p0, @p1)`)
	assert.Equal(t, "Tech", stmt.Params[0].Value)
	assert.Equal(t, "Retail", stmt.Params[1].Value)
}

func TestGenerate_InSubquery(t *testing.T) {
	stmt := generate(t, Postgres,
		"SELECT Id FROM Account WHERE Id IN (SELECT RecordId FROM Share WHERE UserOrGroupId = 'u1')")

	assert.Contains(t, stmt.SQL, `t0."id" IN (SELECT t0."record_id" FROM "shares" t0 WHERE t0."user_or_group_id" = @p0)`)
	assert.Equal(t, "u1", stmt.Params[0].Value)
}

func TestGenerate_OrderByNulls(t *testing.T) {
	pg := generate(t, Postgres, "SELECT Id FROM Account ORDER BY Name DESC NULLS FIRST")
	assert.Contains(t, pg.SQL, `ORDER BY t0."name" DESC NULLS FIRST`)

	ms := generate(t, SQLServer, "SELECT Id FROM Account ORDER BY Name DESC NULLS FIRST")
	assert.Contains(t, ms.SQL, "CASE WHEN t0.[name] IS NULL THEN 0 ELSE 1 END, t0.[name] DESC")
	assert.NotContains(t, ms.SQL, "NULLS")
}

func TestGenerate_MockDialectBareIdentifiers(t *testing.T) {
	stmt := generate(t, Mock, "SELECT Id, Name FROM Account WHERE Name = 'Acme'")
	assert.Equal(t, "SELECT t0.id, t0.name FROM accounts t0 WHERE t0.name = @p0", stmt.SQL)
}

func TestGenerate_UnknownFieldFails(t *testing.T) {
	registry := catalog.NewDemoRegistry()
	query, err := parser.New(registry).Parse("SELECT Nope FROM Account")
	require.NoError(t, err)
	plan := optimizer.New(registry, registry).Optimize(query)

	_, err = New(registry, Postgres).Generate(plan)
	var metaErr *types.MetadataError
	require.ErrorAs(t, err, &metaErr)
}

func TestGenerate_UnresolvedRelationshipFails(t *testing.T) {
	registry := catalog.NewDemoRegistry()
	query, err := parser.New(registry).Parse("SELECT Bogus.Name FROM Account")
	require.NoError(t, err)
	plan := optimizer.New(registry, registry).Optimize(query)

	_, err = New(registry, Postgres).Generate(plan)
	var metaErr *types.MetadataError
	require.ErrorAs(t, err, &metaErr)
}

// No input literal may survive into the SQL text; everything rides in the
// parameter list (integer pagination excepted).
func TestGenerate_ParameterSafety(t *testing.T) {
	stmt := generate(t, Postgres,
		"SELECT Id FROM Account WHERE Name = 'x OR 1=1; DROP TABLE accounts; --' AND Industry IN ('Tech', 'Retail') AND AnnualRevenue > 31337")

	assert.NotContains(t, stmt.SQL, "DROP TABLE")
	assert.NotContains(t, stmt.SQL, "Tech")
	assert.NotContains(t, stmt.SQL, "31337")
	assert.Len(t, stmt.Params, 4)

	// Every placeholder is accounted for by a parameter.
	placeholders := regexp.MustCompile(`@p\d+`).FindAllString(stmt.SQL, -1)
	assert.Len(t, placeholders, len(stmt.Params))
}

func TestGenerate_GoldenComplexQuery(t *testing.T) {
	const dsql = "SELECT Id, Account.Name FROM Contact WHERE Email IS NOT NULL AND Name LIKE '%corp%' ORDER BY Name DESC NULLS FIRST LIMIT 5 OFFSET 10"

	g := goldie.New(t)
	for name, dialect := range map[string]Dialect{
		"complex_postgres":  Postgres,
		"complex_sqlserver": SQLServer,
		"complex_mock":      Mock,
	} {
		stmt := generate(t, dialect, dsql)
		g.Assert(t, name, []byte(stmt.SQL))
	}
}
