// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the auth service. All variables share the
// KINOAUTH_ prefix.
type Config struct {
	Addr    string `env:"KINOAUTH_ADDR" envDefault:":8080"`
	Version string `env:"KINOAUTH_VERSION" envDefault:"dev"`

	PGDSN      string `env:"KINOAUTH_PG_DSN"`
	ValkeyAddr string `env:"KINOAUTH_VALKEY_ADDR" envDefault:"localhost:6379"`
	ValkeyPass string `env:"KINOAUTH_VALKEY_PASSWORD"`

	SecretKey  string        `env:"KINOAUTH_SECRET_KEY"`
	JWTSecret  string        `env:"KINOAUTH_JWT_SECRET"`
	JWTIssuer  string        `env:"KINOAUTH_JWT_ISSUER" envDefault:"kinoauth"`
	AccessTTL  time.Duration `env:"KINOAUTH_JWT_ACCESS_TTL" envDefault:"10m"`
	RefreshTTL time.Duration `env:"KINOAUTH_JWT_REFRESH_TTL" envDefault:"72h"`

	// Delegated administrative tokens (remote issuer, RS256).
	OAuthJWKSURL  string `env:"KINOAUTH_OAUTH_JWKS_URL"`
	OAuthAudience string `env:"KINOAUTH_OAUTH_AUDIENCE"`
	OAuthIssuer   string `env:"KINOAUTH_OAUTH_ISSUER"`

	// Social providers.
	GoogleClientID     string `env:"KINOAUTH_SOCIAL_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"KINOAUTH_SOCIAL_GOOGLE_CLIENT_SECRET"`
	YandexClientID     string `env:"KINOAUTH_SOCIAL_YANDEX_CLIENT_ID"`
	YandexClientSecret string `env:"KINOAUTH_SOCIAL_YANDEX_CLIENT_SECRET"`
	SocialUseStubs     bool   `env:"KINOAUTH_SOCIAL_USE_STUBS" envDefault:"false"`

	RatePerSecond float64 `env:"KINOAUTH_RATE_PER_SECOND" envDefault:"20"`
	RateBurst     int     `env:"KINOAUTH_RATE_BURST" envDefault:"40"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.SecretKey
	}
	return cfg, nil
}
