package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: resource conflict")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordMismatch   = errors.New("auth: passwords mismatch")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrUnknownProvider    = errors.New("auth: unknown social provider")
)
