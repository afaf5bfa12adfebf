// Package social contains the third-party login provider adapters. Each
// provider implements the same four-method capability surface consumed by
// the social auth flow; the concrete implementation is resolved from a
// slug→provider mapping built at startup.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kinoauth.org/internal/auth"
)

// Provider is the capability a social login backend must offer.
type Provider interface {
	Slug() string
	AuthorizationURL(state, redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
	UserInfo(ctx context.Context, accessToken string) (auth.SocialUserInfo, error)
}

// Registry maps provider slugs to implementations. Built once at startup,
// read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry indexes the given providers by slug.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Slug()] = p
	}
	return &Registry{providers: m}
}

// Resolve returns the provider for the slug or ErrUnknownProvider.
func (r *Registry) Resolve(slug string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", auth.ErrUnknownProvider, slug)
	}
	return p, nil
}

// Slugs lists the registered provider slugs.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.providers))
	for slug := range r.providers {
		slugs = append(slugs, slug)
	}
	return slugs
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func fetchJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build userinfo request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch userinfo: provider returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read userinfo: %w", err)
	}
	return json.Unmarshal(body, out)
}
