package social

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/yandex"

	"kinoauth.org/internal/auth"
)

const (
	yandexSlug        = "yandex"
	yandexUserInfoURL = "https://login.yandex.ru/info"
)

// Yandex implements Provider over Yandex OAuth.
type Yandex struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewYandex constructs the Yandex provider adapter.
func NewYandex(clientID, clientSecret string) *Yandex {
	return &Yandex{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     yandex.Endpoint,
		},
		httpClient: newHTTPClient(),
	}
}

func (y *Yandex) Slug() string { return yandexSlug }

func (y *Yandex) AuthorizationURL(state, redirectURI string) string {
	cfg := *y.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

func (y *Yandex) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	cfg := *y.config
	cfg.RedirectURL = redirectURI
	ctx = context.WithValue(ctx, oauth2.HTTPClient, y.httpClient)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("exchange code: empty access token")
	}
	return token.AccessToken, nil
}

func (y *Yandex) UserInfo(ctx context.Context, accessToken string) (auth.SocialUserInfo, error) {
	var payload struct {
		ID           string `json:"id"`
		DefaultEmail string `json:"default_email"`
	}
	header := http.Header{"Authorization": {"OAuth " + accessToken}}
	if err := fetchJSON(ctx, y.httpClient, yandexUserInfoURL+"?format=json", header, &payload); err != nil {
		return auth.SocialUserInfo{}, err
	}
	if payload.ID == "" || payload.DefaultEmail == "" {
		return auth.SocialUserInfo{}, fmt.Errorf("yandex userinfo: incomplete payload")
	}
	return auth.SocialUserInfo{
		SocialID:     payload.ID,
		Email:        payload.DefaultEmail,
		ProviderSlug: yandexSlug,
	}, nil
}
