package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"kinoauth.org/internal/audit"
	"kinoauth.org/internal/obs"
)

// SocialService reconciles a third-party login assertion with a local
// account, creating the account and/or the linked identity only when
// neither exists yet.
type SocialService struct {
	users  UserStore
	social SocialAccountStore
	hasher PasswordHasher
}

// NewSocialService wires the identity linker with its collaborators.
func NewSocialService(users UserStore, social SocialAccountStore, hasher PasswordHasher) (*SocialService, error) {
	switch {
	case users == nil:
		return nil, errors.New("user store is required")
	case social == nil:
		return nil, errors.New("social account store is required")
	case hasher == nil:
		return nil, errors.New("password hasher is required")
	}
	return &SocialService{users: users, social: social, hasher: hasher}, nil
}

// HandleSocialAuth resolves the assertion to a local account. Two
// concurrent calls for the same new identity can both pass the absence
// checks; the database uniqueness constraints turn the loser's insert into
// ErrConflict, which is handled by re-reading the winner's row. The call is
// idempotent.
func (s *SocialService) HandleSocialAuth(ctx context.Context, info SocialUserInfo) (*User, error) {
	email := normalizeEmail(info.Email)
	if email == "" || info.SocialID == "" || info.ProviderSlug == "" {
		return nil, fmt.Errorf("%w: incomplete social assertion", ErrInvalidInput)
	}
	info.Email = email

	user, err := s.users.FindActiveByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		user, err = s.createWithPlaceholderPassword(ctx, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	_, err = s.social.FindByEmail(ctx, email, info.ProviderSlug)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		if _, err := s.social.Create(ctx, user.ID, info); err != nil {
			if !errors.Is(err, ErrConflict) {
				return nil, err
			}
			// Someone else completed linking between our read and write.
			// Re-read the winner's row; a miss means the conflict came
			// from a link made under a different identity, and it stands.
			if _, rerr := s.social.FindByEmail(ctx, email, info.ProviderSlug); rerr != nil {
				if errors.Is(rerr, ErrNotFound) {
					return nil, err
				}
				return nil, rerr
			}
		} else {
			audit.LogEvent(ctx, "social.linked", map[string]any{
				"user_id":  user.ID,
				"provider": info.ProviderSlug,
			})
		}
	default:
		return nil, err
	}

	obs.ObserveSocialLogin(info.ProviderSlug)
	return user, nil
}

// createWithPlaceholderPassword creates an account for a first-time social
// login. The password is random so the placeholder can never authenticate;
// the account owner is expected to set a real one via change-password.
// TODO: revisit once the temp-password policy decision is settled.
func (s *SocialService) createWithPlaceholderPassword(ctx context.Context, email string) (*User, error) {
	placeholder, err := randomSecret()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(placeholder)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}
	user, err := s.users.Create(ctx, email, hash)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, ErrConflict) {
		// Lost the creation race: the winner's account is the account.
		return s.users.FindActiveByEmail(ctx, email)
	}
	return nil, err
}

// Unlink removes the user's linked identity for the provider.
func (s *SocialService) Unlink(ctx context.Context, userID, providerSlug string) error {
	providerSlug = strings.TrimSpace(providerSlug)
	if userID == "" || providerSlug == "" {
		return fmt.Errorf("%w: user id and provider are required", ErrInvalidInput)
	}
	if err := s.social.Delete(ctx, userID, providerSlug); err != nil {
		return err
	}
	audit.LogEvent(ctx, "social.unlinked", map[string]any{
		"user_id":  userID,
		"provider": providerSlug,
	})
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
