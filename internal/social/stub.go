package social

import (
	"context"
	"net/url"

	"kinoauth.org/internal/auth"
)

// Stub is a canned provider used in tests and local development, selected
// with KINOAUTH_SOCIAL_USE_STUBS.
type Stub struct {
	ProviderSlug string
	Info         auth.SocialUserInfo
}

// NewStub returns a stub provider answering for the given slug.
func NewStub(slug string) *Stub {
	return &Stub{
		ProviderSlug: slug,
		Info: auth.SocialUserInfo{
			SocialID:     "stub-" + slug + "-id",
			Email:        "stub@" + slug + ".example",
			ProviderSlug: slug,
		},
	}
}

func (s *Stub) Slug() string { return s.ProviderSlug }

func (s *Stub) AuthorizationURL(state, redirectURI string) string {
	q := url.Values{"state": {state}, "redirect_uri": {redirectURI}}
	return "https://" + s.ProviderSlug + ".example/authorize?" + q.Encode()
}

func (s *Stub) ExchangeCode(_ context.Context, code, _ string) (string, error) {
	return "stub-token-" + code, nil
}

func (s *Stub) UserInfo(context.Context, string) (auth.SocialUserInfo, error) {
	return s.Info, nil
}
