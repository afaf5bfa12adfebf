package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kinoauth.org/internal/auth"
	"kinoauth.org/internal/cache"
	"kinoauth.org/internal/config"
	"kinoauth.org/internal/httpapi"
	"kinoauth.org/internal/oauth"
	"kinoauth.org/internal/obs"
	"kinoauth.org/internal/social"
)

func main() {
	if err := run(); err != nil {
		obs.LogEvent("fatal", "api exited", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("KINOAUTH_JWT_SECRET or KINOAUTH_SECRET_KEY must be set")
	}
	if cfg.PGDSN == "" {
		return errors.New("KINOAUTH_PG_DSN must be set")
	}
	obs.Init()

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}

	revocationCache, closeCache, err := newRevocationCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	revocations, err := auth.NewRevocationStore(revocationCache)
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, revocations,
		auth.WithIssuerName(cfg.JWTIssuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		return err
	}

	users := auth.NewPGUserStore(db)
	roleStore := auth.NewPGRoleStore(db)
	socialStore := auth.NewPGSocialAccountStore(db)
	loginLog := auth.NewPGLoginLogStore(db)
	hasher := &auth.BcryptHasher{}

	sessions, err := auth.NewSessionService(users, roleStore, loginLog, hasher, issuer)
	if err != nil {
		return err
	}
	socials, err := auth.NewSocialService(users, socialStore, hasher)
	if err != nil {
		return err
	}
	roles, err := auth.NewRoleService(roleStore, users)
	if err != nil {
		return err
	}

	validator, err := newValidator(cfg)
	if err != nil {
		return err
	}

	api, err := httpapi.New(sessions, socials, roles, newProviderRegistry(cfg), httpapi.Options{
		Validator:     validator,
		Probe:         &httpapi.ReadyProbe{DB: db, Cache: revocationCache},
		Version:       cfg.Version,
		RatePerSecond: cfg.RatePerSecond,
		RateBurst:     cfg.RateBurst,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		obs.LogEvent("info", "api listening", map[string]any{"addr": cfg.Addr, "version": cfg.Version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	obs.LogEvent("info", "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRevocationCache picks Valkey when an address is configured and falls
// back to the in-process cache otherwise. The fallback is for single-node
// development only: revocations do not survive a restart.
func newRevocationCache(cfg config.Config) (auth.Cache, func(), error) {
	if cfg.ValkeyAddr != "" {
		vk, err := cache.NewValkey(cache.ValkeyConfig{
			Address:  cfg.ValkeyAddr,
			Password: cfg.ValkeyPass,
		})
		if err != nil {
			return nil, nil, err
		}
		return vk, vk.Close, nil
	}
	obs.LogEvent("warn", "valkey not configured, using in-memory revocation cache", nil)
	return cache.NewMemory(), func() {}, nil
}

func newValidator(cfg config.Config) (*oauth.Validator, error) {
	if cfg.OAuthJWKSURL == "" {
		obs.LogEvent("warn", "delegated token validation disabled: no JWKS URL", nil)
		return nil, nil
	}
	jwks, err := oauth.NewJWKSClient(cfg.OAuthJWKSURL, nil, 0)
	if err != nil {
		return nil, err
	}
	return oauth.NewValidator(jwks, cfg.OAuthAudience, cfg.OAuthIssuer)
}

func newProviderRegistry(cfg config.Config) *social.Registry {
	if cfg.SocialUseStubs {
		return social.NewRegistry(social.NewStub("google"), social.NewStub("yandex"))
	}
	var providers []social.Provider
	if cfg.GoogleClientID != "" {
		providers = append(providers, social.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret))
	}
	if cfg.YandexClientID != "" {
		providers = append(providers, social.NewYandex(cfg.YandexClientID, cfg.YandexClientSecret))
	}
	return social.NewRegistry(providers...)
}
