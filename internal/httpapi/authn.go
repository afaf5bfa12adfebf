package httpapi

import (
	"net/http"

	"kinoauth.org/internal/auth"
	"kinoauth.org/internal/oauth"
)

// Delegated scopes accepted on the administrative surface.
const (
	scopeRolesRead  = "roles:read"
	scopeRolesWrite = "roles:write"
	scopeUsersRoles = "users:roles"
)

// withSession authenticates the request with a first-party access token and
// stores its verified claims in the context.
func (a *API) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authorization_required", err.Error())
			return
		}
		claims, err := a.sessions.Issuer().ParseAccess(r.Context(), token)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		next(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	}
}

// withScope authenticates the request with a delegated third-party token
// carrying the required scope.
func (a *API) withScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.validator == nil {
			writeError(w, http.StatusServiceUnavailable, "oauth_not_configured", "Delegated token validation is not configured")
			return
		}
		token, err := oauth.BearerFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			respondDomainError(w, err)
			return
		}
		if _, err := a.validator.Validate(r.Context(), token, scope); err != nil {
			respondDomainError(w, err)
			return
		}
		next(w, r)
	}
}

// sessionClaims returns the claims stored by withSession. Reaching a
// protected handler without them is a programming error, answered as 401.
func sessionClaims(w http.ResponseWriter, r *http.Request) (*auth.AccessClaims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization_required", "Authentication required")
		return nil, false
	}
	return claims, true
}
