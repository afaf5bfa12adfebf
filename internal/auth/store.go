package auth

import (
	"context"
	"time"
)

// UserStore manages user accounts and their role assignments.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindActiveByEmail(ctx context.Context, email string) (*User, error)
	Exists(ctx context.Context, email string) (bool, error)
	SetPasswordHash(ctx context.Context, userID, passwordHash string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	HasRole(ctx context.Context, userID, roleName string) (bool, error)
}

// RoleStore manages the role catalog.
type RoleStore interface {
	Create(ctx context.Context, name, description string) (*Role, error)
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error)
	Delete(ctx context.Context, id string) error
}

// SocialAccountStore manages linked third-party identities.
type SocialAccountStore interface {
	Create(ctx context.Context, userID string, info SocialUserInfo) (*SocialAccount, error)
	FindByEmail(ctx context.Context, email, providerSlug string) (*SocialAccount, error)
	Delete(ctx context.Context, userID, providerSlug string) error
}

// LoginLogStore records login history. Record is fire-and-forget from the
// session service's perspective.
type LoginLogStore interface {
	Record(ctx context.Context, rec *LoginRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*LoginRecord, error)
}

// Cache is the TTL-aware key/value client backing the revocation store.
// Values are never read back, only existence is checked.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
