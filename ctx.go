package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// DefaultContextKey is the router locals key validated claims are stored
// under by the bearer middleware.
const DefaultContextKey = "user"

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the request locals,
// falling back to the request context.
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	if claims, ok := ctx.Locals(key).(AuthClaims); ok {
		return claims, true
	}
	return GetClaims(ctx.Context())
}
