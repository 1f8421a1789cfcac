package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/objectql/types"
)

func TestJWTProvider_RoundTrip(t *testing.T) {
	provider := &JWTProvider{Secret: []byte("test-secret")}

	token, err := provider.Sign(&types.SecurityContext{
		UserID:       "u1",
		Roles:        []string{"Sales"},
		Permissions:  []string{"query"},
		TerritoryIDs: []string{"t-west", "t-east"},
	})
	require.NoError(t, err)

	sctx, err := provider.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", sctx.UserID)
	assert.Equal(t, []string{"Sales"}, sctx.Roles)
	assert.Equal(t, []string{"query"}, sctx.Permissions)
	assert.Equal(t, []string{"t-west", "t-east"}, sctx.TerritoryIDs)
}

func TestJWTProvider_RejectsBadSignature(t *testing.T) {
	provider := &JWTProvider{Secret: []byte("test-secret")}
	token, err := provider.Sign(&types.SecurityContext{UserID: "u1"})
	require.NoError(t, err)

	other := &JWTProvider{Secret: []byte("different-secret")}
	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestContextProvider(t *testing.T) {
	provider := &ContextProvider{}

	_, err := provider.Current(context.Background())
	assert.Error(t, err)

	want := &types.SecurityContext{UserID: "u1"}
	ctx := WithContext(context.Background(), want)
	got, err := provider.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, want, got)
}
