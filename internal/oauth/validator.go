package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerScheme = "Bearer"

// Validator checks delegated administrative tokens: RS256 signature against
// the remote key set, audience, issuer, expiry and, optionally, a required
// scope. Stateless per call except for the key-set cache.
type Validator struct {
	audience string
	issuer   string
	jwks     *JWKSClient
	now      func() time.Time
}

// NewValidator constructs a Validator.
func NewValidator(jwks *JWKSClient, audience, issuer string) (*Validator, error) {
	if jwks == nil {
		return nil, errors.New("jwks client is required")
	}
	if audience == "" || issuer == "" {
		return nil, errors.New("audience and issuer are required")
	}
	return &Validator{audience: audience, issuer: issuer, jwks: jwks, now: time.Now}, nil
}

// BearerFromHeader extracts the token from an Authorization header value.
func BearerFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errHeaderMissing()
	}
	parts := strings.Fields(header)
	if !strings.EqualFold(parts[0], bearerScheme) {
		return "", errInvalidHeader("Authorization header must start with Bearer")
	}
	if len(parts) == 1 {
		return "", errInvalidHeader("Token not found")
	}
	if len(parts) > 2 {
		return "", errInvalidHeader("Authorization header must be Bearer token")
	}
	return parts[1], nil
}

// Validate verifies the token and, when requiredScope is non-empty, checks
// membership in the space-delimited scope claim. Returns the verified
// claims.
func (v *Validator) Validate(ctx context.Context, token, requiredScope string) (jwt.MapClaims, error) {
	header, err := unverifiedHeader(token)
	if err != nil {
		return nil, err
	}
	alg, _ := header["alg"].(string)
	if strings.HasPrefix(strings.ToUpper(alg), "HS") {
		return nil, errInvalidHeader("Invalid header. Use an RS256 signed JWT Access Token")
	}
	kid, _ := header["kid"].(string)
	if kid == "" {
		return nil, errInvalidHeader("Unable to find appropriate key")
	}

	key, err := v.jwks.Key(ctx, kid)
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) {
			return nil, oe
		}
		return nil, errInvalidHeader("Unable to fetch signing keys")
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, errTokenExpired()
		case errors.Is(err, jwt.ErrTokenInvalidAudience),
			errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, errInvalidClaims()
		default:
			return nil, errInvalidHeader("Unable to parse authentication token")
		}
	}

	if requiredScope != "" && !hasScope(claims, requiredScope) {
		return nil, &PermissionError{Scope: requiredScope}
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, required string) bool {
	raw, _ := claims["scope"].(string)
	if raw == "" {
		return false
	}
	for _, s := range strings.Fields(raw) {
		if s == required {
			return true
		}
	}
	return false
}

func unverifiedHeader(token string) (map[string]any, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, errInvalidHeader("Unable to parse authentication token")
	}
	return parsed.Header, nil
}
