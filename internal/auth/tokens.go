package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kinoauth.org/internal/obs"
)

const (
	defaultAccessTTL  = 10 * time.Minute
	defaultRefreshTTL = 72 * time.Hour
	defaultIssuer     = "kinoauth"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the signed payload of an access token. It carries a
// snapshot of the subject's role names and the jti of its paired refresh
// token so both can be revoked together later.
type AccessClaims struct {
	TokenType  string   `json:"token_type"`
	Fresh      bool     `json:"fresh"`
	RefreshJTI string   `json:"refresh_jti"`
	Roles      []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the signed payload of a refresh token.
type RefreshClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer mints, rotates and revokes signed token pairs. It records nothing
// on issue; revocation is opt-in via Rotate and Revoke.
type Issuer struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	revocations *RevocationStore
	now         func() time.Time
}

// IssuerOption configures Issuer behavior.
type IssuerOption func(*Issuer) error

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) error {
		if strings.TrimSpace(name) != "" {
			i.issuer = strings.TrimSpace(name)
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) error {
		if fn != nil {
			i.now = fn
		}
		return nil
	}
}

// NewIssuer constructs an Issuer signing with HS256.
func NewIssuer(secret string, revocations *RevocationStore, opts ...IssuerOption) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("signing secret is required")
	}
	if revocations == nil {
		return nil, errors.New("revocation store is required")
	}
	iss := &Issuer{
		secret:      []byte(secret),
		issuer:      defaultIssuer,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		revocations: revocations,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(iss); err != nil {
			return nil, err
		}
	}
	return iss, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Issue mints a token pair for the user. fresh marks a pair produced by
// primary-credential login, as opposed to refresh rotation.
func (i *Issuer) Issue(user *User, fresh bool) (TokenPair, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	now := i.now().UTC()
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)
	refreshJTI := uuid.NewString()

	access := AccessClaims{
		TokenType:  tokenTypeAccess,
		Fresh:      fresh,
		RefreshJTI: refreshJTI,
		Roles:      user.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	}
	refresh := RefreshClaims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        refreshJTI,
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(i.secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(i.secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Rotate denylists the old refresh identifier and issues a non-fresh pair.
// The access token that was paired with oldRefreshJTI stays valid until its
// own expiry: one revocation write per refresh, a short overlap window is
// the accepted cost.
func (i *Issuer) Rotate(ctx context.Context, oldRefreshJTI string, user *User) (TokenPair, error) {
	if err := i.revocations.Put(ctx, oldRefreshJTI, i.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	obs.ObserveRevocation(1)
	obs.ObserveRefresh()
	return i.Issue(user, false)
}

// Revoke denylists both identifiers of a pair, each for its own token
// type's lifetime. Calling it twice with the same identifiers is safe.
func (i *Issuer) Revoke(ctx context.Context, accessJTI, refreshJTI string) error {
	if err := i.revocations.Put(ctx, accessJTI, i.accessTTL); err != nil {
		return err
	}
	if err := i.revocations.Put(ctx, refreshJTI, i.refreshTTL); err != nil {
		return err
	}
	obs.ObserveRevocation(2)
	return nil
}

// IsRevoked delegates to the revocation store.
func (i *Issuer) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return i.revocations.Exists(ctx, jti)
}

// ParseAccess verifies an access token's signature, expiry and type, then
// consults the revocation store. Store failures propagate: an indeterminate
// revocation state never authenticates a request.
func (i *Issuer) ParseAccess(ctx context.Context, token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	revoked, err := i.revocations.Exists(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and rejects it when its jti is
// already denylisted (a concurrent refresh won the rotation).
func (i *Issuer) ParseRefresh(ctx context.Context, token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	revoked, err := i.revocations.Exists(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
