package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kinoauth.org/internal/audit"
)

// RoleService provides the administrative role CRUD gated by delegated
// tokens at the HTTP layer.
type RoleService struct {
	roles RoleStore
	users UserStore
}

// NewRoleService constructs the role management service.
func NewRoleService(roles RoleStore, users UserStore) (*RoleService, error) {
	if roles == nil {
		return nil, errors.New("role store is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	return &RoleService{roles: roles, users: users}, nil
}

// Create adds a role with a unique name.
func (s *RoleService) Create(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := s.roles.Create(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}
	audit.LogEvent(ctx, "role.created", map[string]any{"role_id": role.ID, "name": role.Name})
	return role, nil
}

// List returns all roles.
func (s *RoleService) List(ctx context.Context) ([]*Role, error) {
	return s.roles.List(ctx)
}

// Get returns a role by id.
func (s *RoleService) Get(ctx context.Context, id string) (*Role, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.roles.Find(ctx, id)
}

// Update applies partial changes to a role.
func (s *RoleService) Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: role name cannot be empty", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	role, err := s.roles.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	audit.LogEvent(ctx, "role.updated", map[string]any{"role_id": role.ID})
	return role, nil
}

// Delete removes a role. Assignments referencing it are removed by the
// database cascade.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	audit.LogEvent(ctx, "role.deleted", map[string]any{"role_id": id})
	return nil
}

// Assign gives the user a role. Assigning the same role twice is a no-op.
func (s *RoleService) Assign(ctx context.Context, userID, roleID string) error {
	if err := s.requireUserAndRole(ctx, userID, roleID); err != nil {
		return err
	}
	if err := s.users.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	audit.LogEvent(ctx, "role.assigned", map[string]any{"user_id": userID, "role_id": roleID})
	return nil
}

// Revoke removes a role from the user.
func (s *RoleService) Revoke(ctx context.Context, userID, roleID string) error {
	if err := s.requireUserAndRole(ctx, userID, roleID); err != nil {
		return err
	}
	if err := s.users.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	audit.LogEvent(ctx, "role.revoked", map[string]any{"user_id": userID, "role_id": roleID})
	return nil
}

// HasRole reports whether the user currently holds the named role. Note
// this checks live state, not a token snapshot.
func (s *RoleService) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(roleName) == "" {
		return false, fmt.Errorf("%w: user id and role name are required", ErrInvalidInput)
	}
	return s.users.HasRole(ctx, userID, roleName)
}

func (s *RoleService) requireUserAndRole(ctx context.Context, userID, roleID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(roleID) == "" {
		return fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}
	if _, err := s.roles.Find(ctx, roleID); err != nil {
		return err
	}
	return nil
}
