package identity

import "context"

type contextKey string

const (
	claimsKey contextKey = "identity.claims"
	tokenKey  contextKey = "identity.token"
)

// ContextWithClaims attaches verified access-token claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified claims attached by the
// authentication middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// ContextWithToken attaches the raw bearer token for downstream calls that
// need to forward it.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the raw bearer token, if present.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// UserIDFromContext is a convenience accessor for the authenticated subject.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
