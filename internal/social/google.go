package social

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"kinoauth.org/internal/auth"
)

const (
	googleSlug        = "google"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Google implements Provider over Google OAuth.
type Google struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewGoogle constructs the Google provider adapter.
func NewGoogle(clientID, clientSecret string) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"openid", "email"},
			Endpoint:     google.Endpoint,
		},
		httpClient: newHTTPClient(),
	}
}

func (g *Google) Slug() string { return googleSlug }

// AuthorizationURL builds the consent URL. The redirect URI is request-scoped,
// so it is set on a per-call copy of the config.
func (g *Google) AuthorizationURL(state, redirectURI string) string {
	cfg := *g.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

func (g *Google) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	cfg := *g.config
	cfg.RedirectURL = redirectURI
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("exchange code: empty access token")
	}
	return token.AccessToken, nil
}

func (g *Google) UserInfo(ctx context.Context, accessToken string) (auth.SocialUserInfo, error) {
	var payload struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	header := http.Header{"Authorization": {"Bearer " + accessToken}}
	if err := fetchJSON(ctx, g.httpClient, googleUserInfoURL, header, &payload); err != nil {
		return auth.SocialUserInfo{}, err
	}
	if payload.Sub == "" || payload.Email == "" {
		return auth.SocialUserInfo{}, fmt.Errorf("google userinfo: incomplete payload")
	}
	return auth.SocialUserInfo{
		SocialID:     payload.Sub,
		Email:        payload.Email,
		ProviderSlug: googleSlug,
	}, nil
}
