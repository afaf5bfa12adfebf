package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kinoauth.org/internal/audit"
	"kinoauth.org/internal/obs"
)

// DefaultRoleName is assigned to every newly registered account.
const DefaultRoleName = "viewers"

const loginLogTimeout = 5 * time.Second

// LoginMeta carries request metadata recorded into the login history.
type LoginMeta struct {
	IPAddr    string
	UserAgent string
}

// SessionService orchestrates the token lifecycle: login, refresh, logout
// and password change. Each operation is one persistence transaction; the
// revocation store is deliberately independent of it.
type SessionService struct {
	users  UserStore
	roles  RoleStore
	logins LoginLogStore
	hasher PasswordHasher
	issuer *Issuer
}

// NewSessionService wires the session lifecycle with its collaborators.
func NewSessionService(users UserStore, roles RoleStore, logins LoginLogStore, hasher PasswordHasher, issuer *Issuer) (*SessionService, error) {
	switch {
	case users == nil:
		return nil, errors.New("user store is required")
	case roles == nil:
		return nil, errors.New("role store is required")
	case logins == nil:
		return nil, errors.New("login log store is required")
	case hasher == nil:
		return nil, errors.New("password hasher is required")
	case issuer == nil:
		return nil, errors.New("credential issuer is required")
	}
	return &SessionService{users: users, roles: roles, logins: logins, hasher: hasher, issuer: issuer}, nil
}

// Issuer exposes the credential issuer for token middleware.
func (s *SessionService) Issuer() *Issuer { return s.issuer }

// UserByID loads a user with roles by id.
func (s *SessionService) UserByID(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.users.FindByID(ctx, id)
}

// Register creates a new account and assigns the default role.
func (s *SessionService) Register(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	taken, err := s.users.Exists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	if err := s.assignDefaultRole(ctx, user); err != nil {
		obs.LogEvent("warn", "default role assignment failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}
	audit.LogEvent(ctx, "user.registered", map[string]any{"user_id": user.ID})
	return user, nil
}

func (s *SessionService) assignDefaultRole(ctx context.Context, user *User) error {
	role, err := s.roles.FindByName(ctx, DefaultRoleName)
	if err != nil {
		return err
	}
	if err := s.users.AssignRole(ctx, user.ID, role.ID); err != nil {
		return err
	}
	user.Roles = append(user.Roles, *role)
	return nil
}

// Login verifies primary credentials and issues a fresh token pair. The
// login-history record is fire-and-forget.
func (s *SessionService) Login(ctx context.Context, email, password string, meta LoginMeta) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveLogin("not_found")
		}
		return TokenPair{}, nil, err
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		obs.ObserveLogin("invalid_credentials")
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pair, err := s.issuer.Issue(user, true)
	if err != nil {
		obs.ObserveLogin("error")
		return TokenPair{}, nil, err
	}
	s.recordLogin(ctx, user.ID, meta)
	obs.ObserveLogin("ok")
	return pair, user, nil
}

func (s *SessionService) recordLogin(ctx context.Context, userID string, meta LoginMeta) {
	rec := &LoginRecord{
		UserID:    userID,
		IPAddr:    meta.IPAddr,
		UserAgent: meta.UserAgent,
		LoggedAt:  time.Now().UTC(),
	}
	// Detached from the request: an aborted or slow client must not lose
	// nor delay the history write.
	go func() {
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginLogTimeout)
		defer cancel()
		if err := s.logins.Record(logCtx, rec); err != nil {
			obs.LogEvent("warn", "login history write failed", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}()
}

// Refresh rotates a refresh token. The caller must have already validated
// the refresh token's signature, expiry and revocation state (ParseRefresh
// does all three).
func (s *SessionService) Refresh(ctx context.Context, refreshJTI string, user *User) (TokenPair, error) {
	if user == nil {
		return TokenPair{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	return s.issuer.Rotate(ctx, refreshJTI, user)
}

// Logout revokes the access/refresh pair extracted from the caller's
// already-validated access token claims.
func (s *SessionService) Logout(ctx context.Context, accessJTI, refreshJTI string) error {
	if err := s.issuer.Revoke(ctx, accessJTI, refreshJTI); err != nil {
		return err
	}
	audit.LogEvent(ctx, "user.logout", nil)
	return nil
}

// ChangePassword verifies the old password, persists the new hash and
// unconditionally revokes the pair that authorized the change. A revocation
// failure after the hash is persisted is surfaced, not swallowed.
func (s *SessionService) ChangePassword(ctx context.Context, accessJTI, refreshJTI string, user *User, oldPassword, newPassword, confirm string) (*User, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if err := s.hasher.Verify(user.PasswordHash, oldPassword); err != nil {
		return nil, ErrInvalidCredentials
	}
	if newPassword == "" || newPassword != confirm {
		return nil, ErrPasswordMismatch
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	if err := s.issuer.Revoke(ctx, accessJTI, refreshJTI); err != nil {
		obs.LogEvent("error", "revocation after password change failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return nil, err
	}
	audit.LogEvent(ctx, "user.password_changed", map[string]any{"user_id": user.ID})
	return user, nil
}

// LoginHistory returns the most recent login records for the user.
func (s *SessionService) LoginHistory(ctx context.Context, userID string, limit int) ([]*LoginRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.logins.ListByUser(ctx, userID, limit)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
