package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newSocialFixture(t *testing.T) (*SocialService, *fakeUserStore, *fakeSocialStore) {
	t.Helper()
	users := newFakeUserStore()
	social := newFakeSocialStore()
	svc, err := NewSocialService(users, social, fakeHasher{})
	if err != nil {
		t.Fatalf("NewSocialService: %v", err)
	}
	return svc, users, social
}

func yandexInfo(email string) SocialUserInfo {
	return SocialUserInfo{SocialID: "ya-123", Email: email, ProviderSlug: "yandex"}
}

func TestSocialAuthCreatesAccountAndLink(t *testing.T) {
	svc, users, social := newSocialFixture(t)
	user, err := svc.HandleSocialAuth(context.Background(), yandexInfo("New@Example.com"))
	if err != nil {
		t.Fatalf("HandleSocialAuth: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}
	stored, err := users.FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("created user not persisted: %v", err)
	}
	if stored.PasswordHash == "" {
		t.Fatal("placeholder password hash must be set")
	}
	link, err := social.FindByEmail(context.Background(), "new@example.com", "yandex")
	if err != nil {
		t.Fatalf("link not persisted: %v", err)
	}
	if link.UserID != user.ID || link.SocialID != "ya-123" {
		t.Fatalf("link = %+v, want owned by %s", link, user.ID)
	}
}

func TestSocialAuthPlaceholderPasswordsDiffer(t *testing.T) {
	svc, users, _ := newSocialFixture(t)
	u1, err := svc.HandleSocialAuth(context.Background(), yandexInfo("one@example.com"))
	if err != nil {
		t.Fatalf("HandleSocialAuth: %v", err)
	}
	u2, err := svc.HandleSocialAuth(context.Background(), yandexInfo("two@example.com"))
	if err != nil {
		t.Fatalf("HandleSocialAuth: %v", err)
	}
	s1, _ := users.FindByID(context.Background(), u1.ID)
	s2, _ := users.FindByID(context.Background(), u2.ID)
	if s1.PasswordHash == s2.PasswordHash {
		t.Fatal("placeholder passwords must be random, not a shared constant")
	}
}

func TestSocialAuthReusesExistingUser(t *testing.T) {
	svc, users, _ := newSocialFixture(t)
	existing, err := users.Create(context.Background(), "alice@example.com", "hashed:pw")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	user, err := svc.HandleSocialAuth(context.Background(), yandexInfo("alice@example.com"))
	if err != nil {
		t.Fatalf("HandleSocialAuth: %v", err)
	}
	if user.ID != existing.ID {
		t.Fatalf("user = %s, want existing %s", user.ID, existing.ID)
	}
	stored, _ := users.FindByID(context.Background(), existing.ID)
	if stored.PasswordHash != "hashed:pw" {
		t.Fatal("existing password must not be touched")
	}
}

func TestSocialAuthIsIdempotent(t *testing.T) {
	svc, _, social := newSocialFixture(t)
	first, err := svc.HandleSocialAuth(context.Background(), yandexInfo("alice@example.com"))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.HandleSocialAuth(context.Background(), yandexInfo("alice@example.com"))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("second call resolved %s, want %s", second.ID, first.ID)
	}
	social.mu.Lock()
	links := len(social.accounts)
	social.mu.Unlock()
	if links != 1 {
		t.Fatalf("links = %d, want exactly one", links)
	}
}

func TestSocialAuthUserCreateRaceReReadsWinner(t *testing.T) {
	svc, users, _ := newSocialFixture(t)
	// The loser's insert fails with a uniqueness conflict; by then the
	// winner's row is readable.
	winner, err := users.Create(context.Background(), "race@example.com", "hashed:pw")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	users.mu.Lock()
	users.findMisses = 1
	users.createErr = fmt.Errorf("%w: users_email_key", ErrConflict)
	users.mu.Unlock()

	user, err := svc.HandleSocialAuth(context.Background(), yandexInfo("race@example.com"))
	if err != nil {
		t.Fatalf("HandleSocialAuth: %v", err)
	}
	if user.ID != winner.ID {
		t.Fatalf("resolved %s, want winner %s", user.ID, winner.ID)
	}
}

func TestSocialAuthLinkRaceReReadsWinner(t *testing.T) {
	svc, users, social := newSocialFixture(t)
	winner, err := users.Create(context.Background(), "alice@example.com", "hashed:pw")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := social.Create(context.Background(), winner.ID, yandexInfo("alice@example.com")); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	// The loser checked before the winner's insert landed, so its own
	// insert conflicts; the re-read then finds the winner's link.
	social.mu.Lock()
	social.findMisses = 1
	social.createErr = fmt.Errorf("%w: social_accounts_email_provider_key", ErrConflict)
	social.mu.Unlock()

	user, err := svc.HandleSocialAuth(context.Background(), yandexInfo("alice@example.com"))
	if err != nil {
		t.Fatalf("conflict on link create must be tolerated: %v", err)
	}
	if user.ID != winner.ID {
		t.Fatalf("resolved %s, want winner %s", user.ID, winner.ID)
	}
}

func TestSocialAuthLinkConflictUnderDifferentIdentitySurfaces(t *testing.T) {
	svc, _, social := newSocialFixture(t)
	// The uniqueness violation came from the (social_id, provider) or
	// (user_id, provider) index: no row exists for this email, so the
	// conflict is real and must reach the caller.
	social.mu.Lock()
	social.createErr = fmt.Errorf("%w: social_accounts_social_id_provider_key", ErrConflict)
	social.mu.Unlock()
	if _, err := svc.HandleSocialAuth(context.Background(), yandexInfo("alice@example.com")); !errors.Is(err, ErrConflict) {
		t.Fatalf("divergent link conflict = %v, want ErrConflict", err)
	}
}

func TestSocialAuthRejectsIncompleteAssertion(t *testing.T) {
	svc, _, _ := newSocialFixture(t)
	cases := []SocialUserInfo{
		{SocialID: "", Email: "a@b.c", ProviderSlug: "yandex"},
		{SocialID: "id", Email: "", ProviderSlug: "yandex"},
		{SocialID: "id", Email: "a@b.c", ProviderSlug: ""},
	}
	for _, info := range cases {
		if _, err := svc.HandleSocialAuth(context.Background(), info); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("incomplete assertion %+v = %v, want ErrInvalidInput", info, err)
		}
	}
}

func TestUnlink(t *testing.T) {
	svc, _, _ := newSocialFixture(t)
	user, err := svc.HandleSocialAuth(context.Background(), yandexInfo("alice@example.com"))
	if err != nil {
		t.Fatalf("HandleSocialAuth: %v", err)
	}
	if err := svc.Unlink(context.Background(), user.ID, "yandex"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := svc.Unlink(context.Background(), user.ID, "yandex"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Unlink = %v, want ErrNotFound", err)
	}
	if err := svc.Unlink(context.Background(), user.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty provider = %v, want ErrInvalidInput", err)
	}
}
