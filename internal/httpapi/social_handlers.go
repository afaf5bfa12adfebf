package httpapi

import (
	"net/http"

	"github.com/google/uuid"
)

const stateCookie = "kinoauth_oauth_state"

func (a *API) handleSocialProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": a.providers.Slugs()})
}

// handleSocialLogin redirects the browser to the provider's authorization
// endpoint. The random state is pinned in a short-lived cookie and checked
// on callback.
func (a *API) handleSocialLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := a.providers.Resolve(r.PathValue("provider"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/v1/social",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, provider.AuthorizationURL(state, a.callbackURL(r, provider.Slug())), http.StatusFound)
}

// handleSocialCallback finishes the provider round-trip: code exchange,
// identity assertion, account reconciliation, token issuance.
func (a *API) handleSocialCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := a.providers.Resolve(r.PathValue("provider"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		writeError(w, http.StatusBadRequest, "social_auth_denied", "Provider returned "+errCode)
		return
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		writeError(w, http.StatusBadRequest, "social_state_mismatch", "State parameter does not match")
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Authorization code is required")
		return
	}

	accessToken, err := provider.ExchangeCode(r.Context(), code, a.callbackURL(r, provider.Slug()))
	if err != nil {
		writeError(w, http.StatusBadGateway, "social_exchange_failed", "Code exchange with the provider failed")
		return
	}
	info, err := provider.UserInfo(r.Context(), accessToken)
	if err != nil {
		writeError(w, http.StatusBadGateway, "social_userinfo_failed", "Provider did not return a usable identity")
		return
	}
	user, err := a.socials.HandleSocialAuth(r.Context(), info)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	pair, err := a.sessions.Issuer().Issue(user, true)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair, "user": user})
}

func (a *API) handleSocialUnlink(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionClaims(w, r)
	if !ok {
		return
	}
	if err := a.socials.Unlink(r.Context(), claims.Subject, r.PathValue("provider")); err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}

func (a *API) callbackURL(r *http.Request, slug string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/v1/social/callback/" + slug
}
