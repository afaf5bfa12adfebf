package auth

import "time"

// User is a password-based account. Roles are loaded alongside the user and
// snapshotted into access tokens at issuance time.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	Roles        []Role    `json:"roles,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RoleNames returns the names of the user's roles in assignment order.
func (u *User) RoleNames() []string {
	if len(u.Roles) == 0 {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Role groups users for authorization purposes. Referenced, never owned, by
// User.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleUpdate carries optional role mutations.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// SocialAccount links a local user to a third-party identity. Created only
// during social-auth reconciliation, never updated.
type SocialAccount struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SocialID     string    `json:"social_id"`
	ProviderSlug string    `json:"provider_slug"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

// SocialUserInfo is the assertion a social provider returns about a user.
type SocialUserInfo struct {
	SocialID     string `json:"social_id"`
	Email        string `json:"email"`
	ProviderSlug string `json:"provider_slug"`
}

// LoginRecord is one row of a user's login history.
type LoginRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IPAddr    string    `json:"ip_addr"`
	UserAgent string    `json:"user_agent"`
	LoggedAt  time.Time `json:"logged_at"`
}

// TokenPair carries a signed access/refresh token couple. It is a value
// object: only the two jti identifiers may later appear in the revocation
// store.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
