package httpapi

import (
	"net/http"
	"strconv"

	"kinoauth.org/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	user, err := a.sessions.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	meta := auth.LoginMeta{IPAddr: clientIP(r), UserAgent: r.UserAgent()}
	pair, user, err := a.sessions.Login(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair, "user": user})
}

// handleRefresh rotates the refresh token presented as the bearer
// credential. The old refresh token is dead on success.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authorization_required", err.Error())
		return
	}
	claims, err := a.sessions.Issuer().ParseRefresh(r.Context(), token)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	user, err := a.sessions.UserByID(r.Context(), claims.Subject)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	pair, err := a.sessions.Refresh(r.Context(), claims.ID, user)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionClaims(w, r)
	if !ok {
		return
	}
	if err := a.sessions.Logout(r.Context(), claims.ID, claims.RefreshJTI); err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type changePasswordRequest struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionClaims(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	user, err := a.sessions.UserByID(r.Context(), claims.Subject)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if _, err := a.sessions.ChangePassword(r.Context(), claims.ID, claims.RefreshJTI, user, req.OldPassword, req.NewPassword, req.NewPasswordConfirm); err != nil {
		respondDomainError(w, err)
		return
	}
	// The pair that authorized this call is revoked; the client must log in
	// again.
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (a *API) handleLoginHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionClaims(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := a.sessions.LoginHistory(r.Context(), claims.Subject, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logins": records})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionClaims(w, r)
	if !ok {
		return
	}
	user, err := a.sessions.UserByID(r.Context(), claims.Subject)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
