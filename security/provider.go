// Package security supplies security contexts and enforces row-level
// security over parsed query trees.
package security

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guileen/objectql/types"
)

// Provider yields the security context for the current logical call.
// Contexts are per-execution: concurrent queries may carry different ones.
type Provider interface {
	Current(ctx context.Context) (*types.SecurityContext, error)
}

// StaticProvider returns a fixed context. Used by tests and the CLI.
type StaticProvider struct {
	Context types.SecurityContext
}

func (p *StaticProvider) Current(ctx context.Context) (*types.SecurityContext, error) {
	sctx := p.Context
	return &sctx, nil
}

type contextKey struct{}

// WithContext binds a security context to a context.Context for retrieval
// by ContextProvider.
func WithContext(ctx context.Context, sctx *types.SecurityContext) context.Context {
	return context.WithValue(ctx, contextKey{}, sctx)
}

// FromContext retrieves a bound security context, if any.
func FromContext(ctx context.Context) (*types.SecurityContext, bool) {
	sctx, ok := ctx.Value(contextKey{}).(*types.SecurityContext)
	return sctx, ok
}

// ContextProvider reads the security context bound to the call's
// context.Context. Used by the HTTP server, where middleware binds the
// authenticated caller before the engine runs.
type ContextProvider struct{}

func (p *ContextProvider) Current(ctx context.Context) (*types.SecurityContext, error) {
	if sctx, ok := FromContext(ctx); ok {
		return sctx, nil
	}
	return nil, fmt.Errorf("no security context bound to call")
}

// JWTProvider derives security contexts from HMAC-signed bearer tokens.
// Claims: sub (user id), roles, perms, territories.
type JWTProvider struct {
	Secret []byte
}

// Parse validates the token and builds a security context from its claims.
func (p *JWTProvider) Parse(tokenString string) (*types.SecurityContext, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	sctx := &types.SecurityContext{Custom: make(map[string]interface{})}
	if sub, err := claims.GetSubject(); err == nil {
		sctx.UserID = sub
	}
	sctx.Roles = stringClaim(claims, "roles")
	sctx.Permissions = stringClaim(claims, "perms")
	sctx.TerritoryIDs = stringClaim(claims, "territories")
	return sctx, nil
}

// Sign issues a token for the given context. Used by tests and the demo
// tooling; production deployments are expected to receive tokens from an
// external identity service.
func (p *JWTProvider) Sign(sctx *types.SecurityContext) (string, error) {
	claims := jwt.MapClaims{
		"sub":         sctx.UserID,
		"roles":       sctx.Roles,
		"perms":       sctx.Permissions,
		"territories": sctx.TerritoryIDs,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.Secret)
}

func stringClaim(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
