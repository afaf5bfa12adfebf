package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"kinoauth.org/internal/auth"
	"kinoauth.org/internal/oauth"
)

// apiError is the wire shape of every error response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": apiError{Code: code, Message: message},
	})
}

// respondDomainError maps a domain error to its canonical status and code.
func respondDomainError(w http.ResponseWriter, err error) {
	var oauthErr *oauth.Error
	var permErr *oauth.PermissionError
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, "resource_conflict", "Resource cannot be processed")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "user_invalid_credentials", "Invalid credentials")
	case errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, "passwords_mismatch", "Passwords don't match")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, "token_revoked", "Token has been revoked")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid token")
	case errors.Is(err, auth.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "social_provider_unknown", "Unknown social provider")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.As(err, &permErr):
		writeError(w, http.StatusForbidden, "oauth_unauthorized", "Client does not have access to the resource")
	case errors.As(err, &oauthErr):
		writeError(w, http.StatusUnauthorized, oauthErr.Code, oauthErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
