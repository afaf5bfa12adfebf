// Package httpapi exposes the authentication service over REST. Handlers
// stay thin: decode, call a service, map the error, encode.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"kinoauth.org/internal/auth"
	"kinoauth.org/internal/oauth"
	"kinoauth.org/internal/obs"
	"kinoauth.org/internal/social"
)

// ReadyProbe reports whether backing dependencies answer.
type ReadyProbe struct {
	DB    *sql.DB
	Cache auth.Cache
}

// Ready pings the database and the revocation cache.
func (p *ReadyProbe) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if p.DB != nil {
		if err := p.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if p.Cache != nil {
		if _, err := p.Cache.Exists(ctx, "readyz-probe"); err != nil {
			return err
		}
	}
	return nil
}

// API holds the HTTP surface and its collaborators.
type API struct {
	mux       *http.ServeMux
	sessions  *auth.SessionService
	socials   *auth.SocialService
	roles     *auth.RoleService
	providers *social.Registry
	validator *oauth.Validator
	probe     *ReadyProbe
	limiter   *ipRateLimiter
	version   string
}

// Options configures optional API behavior.
type Options struct {
	// Validator gates the administrative surface. Nil leaves those routes
	// answering 503.
	Validator *oauth.Validator
	Probe     *ReadyProbe
	Version   string
	// RatePerSecond / RateBurst bound per-client request rates. Zero
	// disables limiting.
	RatePerSecond float64
	RateBurst     int
}

// New wires the routes and returns the API.
func New(sessions *auth.SessionService, socials *auth.SocialService, roles *auth.RoleService, providers *social.Registry, opts Options) (*API, error) {
	switch {
	case sessions == nil:
		return nil, errors.New("session service is required")
	case socials == nil:
		return nil, errors.New("social service is required")
	case roles == nil:
		return nil, errors.New("role service is required")
	case providers == nil:
		return nil, errors.New("provider registry is required")
	}
	a := &API{
		mux:       http.NewServeMux(),
		sessions:  sessions,
		socials:   socials,
		roles:     roles,
		providers: providers,
		validator: opts.Validator,
		probe:     opts.Probe,
		version:   opts.Version,
	}
	if opts.RatePerSecond > 0 {
		a.limiter = newIPRateLimiter(opts.RatePerSecond, opts.RateBurst)
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	a.mux.HandleFunc("GET /v1/info", a.handleInfo)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /v1/auth/logout", a.withSession(a.handleLogout))
	a.mux.HandleFunc("POST /v1/auth/password", a.withSession(a.handleChangePassword))
	a.mux.HandleFunc("GET /v1/auth/login-history", a.withSession(a.handleLoginHistory))
	a.mux.HandleFunc("GET /v1/users/me", a.withSession(a.handleMe))

	a.mux.HandleFunc("GET /v1/social/providers", a.handleSocialProviders)
	a.mux.HandleFunc("GET /v1/social/login/{provider}", a.handleSocialLogin)
	a.mux.HandleFunc("GET /v1/social/callback/{provider}", a.handleSocialCallback)
	a.mux.HandleFunc("DELETE /v1/social/{provider}", a.withSession(a.handleSocialUnlink))

	a.mux.HandleFunc("GET /v1/roles", a.withScope(scopeRolesRead, a.handleRoleList))
	a.mux.HandleFunc("POST /v1/roles", a.withScope(scopeRolesWrite, a.handleRoleCreate))
	a.mux.HandleFunc("GET /v1/roles/{id}", a.withScope(scopeRolesRead, a.handleRoleGet))
	a.mux.HandleFunc("PATCH /v1/roles/{id}", a.withScope(scopeRolesWrite, a.handleRoleUpdate))
	a.mux.HandleFunc("DELETE /v1/roles/{id}", a.withScope(scopeRolesWrite, a.handleRoleDelete))
	a.mux.HandleFunc("POST /v1/users/{id}/roles", a.withScope(scopeUsersRoles, a.handleRoleAssign))
	a.mux.HandleFunc("DELETE /v1/users/{id}/roles/{roleID}", a.withScope(scopeUsersRoles, a.handleRoleRevoke))
}

// Handler returns the fully wrapped HTTP handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.limiter != nil {
		h = a.limiter.Middleware(h)
	}
	h = SecurityHeaders(h)
	h = CORS(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.probe != nil {
		if err := a.probe.Ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", "Dependency check failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, obs.Build(a.version))
}
