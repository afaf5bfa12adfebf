package auth

import (
	"context"
	"strings"
)

type ctxKey string

const claimsKey ctxKey = "auth_access_claims"

// ContextWithClaims stores verified access-token claims in the context.
func ContextWithClaims(ctx context.Context, claims *AccessClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts the verified access-token claims, if any.
func ClaimsFromContext(ctx context.Context) (*AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*AccessClaims)
	return claims, ok
}

// UserIDFromContext returns the authenticated subject id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", false
	}
	return claims.Subject, true
}

// HasRole reports whether the token's role snapshot contains the role.
// Snapshots are trusted for the token's lifetime.
func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	for _, r := range claims.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
