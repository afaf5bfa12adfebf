// Package oauth validates externally-minted administrative bearer tokens
// against a remote JSON Web Key Set and enforces scope requirements.
// Delegated tokens are not revocable by this service: the validator never
// touches the revocation store.
package oauth

import "fmt"

// Error is a delegated-token validation failure, rendered as 401 with a
// machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("oauth: %s (%s)", e.Message, e.Code)
}

// PermissionError means the token validated but lacks the required scope.
// Rendered as 403.
type PermissionError struct {
	Scope string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("oauth: missing required scope %q", e.Scope)
}

func errHeaderMissing() *Error {
	return &Error{Code: "authorization_header_missing", Message: "Authorization header is expected"}
}

func errInvalidHeader(message string) *Error {
	return &Error{Code: "invalid_header", Message: message}
}

func errTokenExpired() *Error {
	return &Error{Code: "token_expired", Message: "Token is expired"}
}

func errInvalidClaims() *Error {
	return &Error{Code: "invalid_claims", Message: "Incorrect claims, please check the audience and issuer"}
}
