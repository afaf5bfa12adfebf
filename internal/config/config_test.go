package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KINOAUTH_SECRET_KEY", "top-secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AccessTTL != 10*time.Minute {
		t.Fatalf("AccessTTL = %v, want 10m", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 72*time.Hour {
		t.Fatalf("RefreshTTL = %v, want 72h", cfg.RefreshTTL)
	}
	if cfg.JWTIssuer != "kinoauth" {
		t.Fatalf("JWTIssuer = %q, want kinoauth", cfg.JWTIssuer)
	}
	if cfg.JWTSecret != "top-secret" {
		t.Fatalf("JWTSecret = %q, want fallback to SecretKey", cfg.JWTSecret)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KINOAUTH_ADDR", ":9090")
	t.Setenv("KINOAUTH_JWT_SECRET", "dedicated")
	t.Setenv("KINOAUTH_SECRET_KEY", "legacy")
	t.Setenv("KINOAUTH_JWT_ACCESS_TTL", "5m")
	t.Setenv("KINOAUTH_SOCIAL_USE_STUBS", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.JWTSecret != "dedicated" {
		t.Fatalf("JWTSecret = %q, dedicated secret must win over SecretKey", cfg.JWTSecret)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.AccessTTL)
	}
	if !cfg.SocialUseStubs {
		t.Fatal("SocialUseStubs must parse")
	}
}
