package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/driver"
	"github.com/guileen/objectql/security"
	"github.com/guileen/objectql/sqlgen"
	"github.com/guileen/objectql/types"
)

func newTestEngine(t *testing.T, mutate func(*Config), sctx types.SecurityContext) (*Engine, *driver.MockDriver) {
	t.Helper()

	config := DefaultConfig()
	config.Dialect = sqlgen.Mock
	config.EnableRLS = false
	if mutate != nil {
		mutate(&config)
	}

	mock := &driver.MockDriver{}
	registry := catalog.NewDemoRegistry()
	eng := New(config, registry, registry, mock, &security.StaticProvider{Context: sctx})
	t.Cleanup(eng.Close)
	return eng, mock
}

func TestEngine_QueryReturnsDriverRows(t *testing.T) {
	eng, mock := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})
	mock.Rows = []types.Row{{"id": "a1", "name": "Acme"}, {"id": "a2", "name": "Globex"}}

	rows, err := eng.Query(context.Background(), "SELECT Id, Name FROM Account")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Acme", rows[0]["name"])

	call := mock.LastCall()
	require.NotNil(t, call)
	assert.Contains(t, call.SQL, "SELECT t0.id, t0.name FROM accounts t0")
}

func TestEngine_PlanCacheHitCount(t *testing.T) {
	eng, _ := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})

	for i := 0; i < 3; i++ {
		_, err := eng.Query(context.Background(), "SELECT Id FROM Account")
		require.NoError(t, err)
	}

	result := eng.Execute(context.Background(), "SELECT Id FROM Account")
	require.True(t, result.Success)
	assert.NotEmpty(t, result.Metadata["plan_id"])

	// First call misses; the two later Query calls and Execute all hit.
	assert.Equal(t, int64(3), eng.planCache.GetStatistics().TotalHits)
}

func TestEngine_ResultCacheShortCircuitsDriver(t *testing.T) {
	eng, mock := newTestEngine(t, func(c *Config) {
		c.EnableResultCache = true
	}, types.SecurityContext{UserID: "u1"})
	mock.Rows = []types.Row{{"id": "a1"}}

	_, err := eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)
	_, err = eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)

	assert.Len(t, mock.Calls(), 1)
}

func TestEngine_InvalidateCacheForcesReexecution(t *testing.T) {
	eng, mock := newTestEngine(t, func(c *Config) {
		c.EnableResultCache = true
	}, types.SecurityContext{UserID: "u1"})
	mock.Rows = []types.Row{{"id": "a1"}}

	_, err := eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)

	eng.InvalidateCache("Account")

	_, err = eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 2)
}

func TestEngine_RLSAddsAccessPredicate(t *testing.T) {
	eng, mock := newTestEngine(t, func(c *Config) {
		c.EnableRLS = true
	}, types.SecurityContext{UserID: "u1"})

	_, err := eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)

	call := mock.LastCall()
	require.NotNil(t, call)
	assert.Contains(t, call.SQL, "owner_id")
	assert.Contains(t, call.SQL, "shares")
	assert.Contains(t, call.SQL, "user_role_hierarchy")

	var hasUserParam bool
	for _, p := range call.Params {
		if p.Value == "u1" {
			hasUserParam = true
		}
	}
	assert.True(t, hasUserParam)
}

func TestEngine_RLSAdminBypass(t *testing.T) {
	eng, mock := newTestEngine(t, func(c *Config) {
		c.EnableRLS = true
	}, types.SecurityContext{UserID: "root", Roles: []string{types.AdminRole}})

	_, err := eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)
	assert.NotContains(t, mock.LastCall().SQL, "owner_id")
}

func TestEngine_RLSKeysCacheByUser(t *testing.T) {
	config := DefaultConfig()
	config.Dialect = sqlgen.Mock
	config.EnableResultCache = true
	mock := &driver.MockDriver{}
	registry := catalog.NewDemoRegistry()
	eng := New(config, registry, registry, mock, &security.ContextProvider{})
	t.Cleanup(eng.Close)

	for _, user := range []string{"u1", "u2"} {
		ctx := security.WithContext(context.Background(), &types.SecurityContext{UserID: user})
		_, err := eng.Query(ctx, "SELECT Id FROM Account")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, eng.planCache.Len())

	// Identical text, different callers: each execution carries its own
	// user parameter, so no plan or result is shared across users.
	calls := mock.Calls()
	require.Len(t, calls, 2)
	for i, user := range []string{"u1", "u2"} {
		var found bool
		for _, p := range calls[i].Params {
			if p.Value == user {
				found = true
			}
		}
		assert.True(t, found, user)
	}
}

func TestEngine_ExecuteInstrumented(t *testing.T) {
	eng, mock := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})
	mock.Rows = []types.Row{{"id": "a1"}}

	result := eng.Execute(context.Background(), "SELECT Id FROM Account")
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RecordCount)
	assert.Empty(t, result.Error)
	assert.NotZero(t, result.ExecutionTime)
	assert.NotEmpty(t, result.Metadata["request_id"])
	assert.NotEmpty(t, result.Metadata["plan_id"])
}

func TestEngine_ExecuteReportsParseError(t *testing.T) {
	eng, _ := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})

	result := eng.Execute(context.Background(), "FROBNICATE all the things")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "parse error")
	assert.Zero(t, result.RecordCount)
}

func TestEngine_DriverErrorWrapped(t *testing.T) {
	eng, mock := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})
	mock.Err = errors.New("connection refused")

	_, err := eng.Query(context.Background(), "SELECT Id FROM Account")
	var sqlErr *types.SQLError
	require.ErrorAs(t, err, &sqlErr)
	assert.Contains(t, sqlErr.SQL, "SELECT")
	assert.ErrorContains(t, sqlErr.Err, "connection refused")
}

func TestEngine_Explain(t *testing.T) {
	eng, mock := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})

	plan, err := eng.Explain(context.Background(), "SELECT Id, Account.Name FROM Contact")
	require.NoError(t, err)
	assert.NotEmpty(t, plan.PlanID)
	assert.Len(t, plan.JoinOrder, 1)
	assert.Empty(t, mock.Calls(), "explain must not execute")
}

func TestEngine_ChildRelationshipLoading(t *testing.T) {
	eng, mock := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})

	mock.Handler = func(stmt *sqlgen.Statement) ([]types.Row, error) {
		if strings.Contains(stmt.SQL, "FROM contacts") {
			return []types.Row{
				{"name": "Alice", "account_id": "a1"},
				{"name": "Bob", "account_id": "a1"},
				{"name": "Carol", "account_id": "a2"},
			}, nil
		}
		return []types.Row{{"id": "a1"}, {"id": "a2"}, {"id": "a3"}}, nil
	}

	rows, err := eng.Query(context.Background(), "SELECT Id, (SELECT Name FROM Contacts) FROM Account")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Parent order preserved, children grouped by foreign key.
	assert.Equal(t, "a1", rows[0]["id"])
	children, _ := rows[0]["Contacts"].([]types.Row)
	assert.Len(t, children, 2)
	children, _ = rows[1]["Contacts"].([]types.Row)
	assert.Len(t, children, 1)
	assert.Nil(t, rows[2]["Contacts"])

	// Main query plus one child fetch.
	assert.Len(t, mock.Calls(), 2)

	// The child fetch is keyed to the parents actually returned.
	var childCall *driver.Call
	for i, call := range mock.Calls() {
		if strings.Contains(call.SQL, "FROM contacts") {
			c := mock.Calls()[i]
			childCall = &c
		}
	}
	require.NotNil(t, childCall)
	assert.Contains(t, childCall.SQL, "account_id IN")
}

func TestEngine_ChildLoadFailureFailsQuery(t *testing.T) {
	eng, mock := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})

	mock.Handler = func(stmt *sqlgen.Statement) ([]types.Row, error) {
		if strings.Contains(stmt.SQL, "FROM contacts") {
			return nil, errors.New("child fetch failed")
		}
		return []types.Row{{"id": "a1"}}, nil
	}

	_, err := eng.Query(context.Background(), "SELECT Id, (SELECT Name FROM Contacts) FROM Account")
	require.Error(t, err)
}

func TestEngine_Cancellation(t *testing.T) {
	eng, _ := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Query(ctx, "SELECT Id FROM Account")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ClearCaches(t *testing.T) {
	eng, mock := newTestEngine(t, func(c *Config) {
		c.EnableResultCache = true
	}, types.SecurityContext{UserID: "u1"})
	mock.Rows = []types.Row{{"id": "a1"}}

	_, err := eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)

	eng.ClearCaches()

	_, err = eng.Query(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 2)
}

func TestQueryTyped(t *testing.T) {
	eng, mock := newTestEngine(t, nil, types.SecurityContext{UserID: "u1"})
	mock.Rows = []types.Row{{"id": "a1", "name": "Acme"}}

	type account struct {
		ID   string `objectql:"id"`
		Name string
	}

	accounts, err := QueryTyped[account](context.Background(), eng, "SELECT Id, Name FROM Account")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "a1", accounts[0].ID)
	assert.Equal(t, "Acme", accounts[0].Name)
}
