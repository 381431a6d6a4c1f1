package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
)

// RBACService administers roles, permissions and their assignments. Links
// are switched on and off, never deleted, and every change that can alter a
// user's claims drops the affected cached projections.
type RBACService struct {
	Deps
	log *slog.Logger
}

// NewRBACService wires RBAC administration.
func NewRBACService(deps Deps) *RBACService {
	deps = deps.withDefaults()
	return &RBACService{Deps: deps, log: deps.Logger.With("component", "rbac")}
}

// CreateRole adds an active role. A taken name is a conflict.
func (s *RBACService) CreateRole(ctx context.Context, name string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if err := fromValidation(validation.Errors{
		"name": validation.Validate(name, validation.Required, validation.Length(1, 64)),
	}.Filter()); err != nil {
		return nil, err
	}
	role := &model.Role{Name: name, IsActive: true}
	if err := s.Roles.CreateRole(ctx, role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Conflict("name", "role already exists")
		}
		return nil, Internal(err)
	}
	s.log.Info("role created", "role", name)
	return role, nil
}

// CreatePermission adds an active permission. Name and the resource/action
// pair must both be unused.
func (s *RBACService) CreatePermission(ctx context.Context, name, resource, action string) (*model.Permission, error) {
	p := &model.Permission{
		Name:     strings.TrimSpace(name),
		Resource: strings.TrimSpace(resource),
		Action:   strings.TrimSpace(action),
		IsActive: true,
	}
	if err := fromValidation(validation.Errors{
		"name":     validation.Validate(p.Name, validation.Required, validation.Length(1, 128)),
		"resource": validation.Validate(p.Resource, validation.Required, validation.Length(1, 64)),
		"action":   validation.Validate(p.Action, validation.Required, validation.Length(1, 64)),
	}.Filter()); err != nil {
		return nil, err
	}
	switch err := s.Roles.CreatePermission(ctx, p); {
	case errors.Is(err, repository.ErrDuplicateAction):
		return nil, Conflict("resource", "resource and action already granted by another permission")
	case errors.Is(err, repository.ErrDuplicate):
		return nil, Conflict("name", "permission already exists")
	case err != nil:
		return nil, Internal(err)
	}
	s.log.Info("permission created", "permission", p.Name)
	return p, nil
}

// ListRoles returns every role.
func (s *RBACService) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := s.Roles.ListRoles(ctx)
	if err != nil {
		return nil, Internal(err)
	}
	return roles, nil
}

// AssignRole links the user to the role, re-enabling a disabled link.
func (s *RBACService) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.getUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.getRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.Roles.AssignRole(ctx, userID, roleID); err != nil {
		return Internal(err)
	}
	s.invalidate(ctx, userID)
	s.log.Info("role assigned", "user_id", userID, "role_id", roleID)
	return nil
}

// SetUserRoleActive toggles an existing user-role link.
func (s *RBACService) SetUserRoleActive(ctx context.Context, userID, roleID string, active bool) error {
	err := s.Roles.SetUserRoleActive(ctx, userID, roleID, active)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("role assignment not found")
	}
	if err != nil {
		return Internal(err)
	}
	s.invalidate(ctx, userID)
	s.log.Info("role assignment toggled", "user_id", userID, "role_id", roleID, "active", active)
	return nil
}

// SetRoleActive toggles a role for everyone holding it.
func (s *RBACService) SetRoleActive(ctx context.Context, roleID string, active bool) error {
	err := s.Roles.SetRoleActive(ctx, roleID, active)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("role not found")
	}
	if err != nil {
		return Internal(err)
	}
	return s.invalidateRole(ctx, roleID)
}

// GrantPermission links the permission to the role, re-enabling a disabled
// link.
func (s *RBACService) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	if _, err := s.getRole(ctx, roleID); err != nil {
		return err
	}
	_, err := s.Roles.GetPermissionByID(ctx, permissionID)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("permission not found")
	}
	if err != nil {
		return Internal(err)
	}
	if err := s.Roles.GrantPermission(ctx, roleID, permissionID); err != nil {
		return Internal(err)
	}
	return s.invalidateRole(ctx, roleID)
}

// SetRolePermissionActive toggles an existing role-permission link.
func (s *RBACService) SetRolePermissionActive(ctx context.Context, roleID, permissionID string, active bool) error {
	err := s.Roles.SetRolePermissionActive(ctx, roleID, permissionID, active)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("permission grant not found")
	}
	if err != nil {
		return Internal(err)
	}
	return s.invalidateRole(ctx, roleID)
}

// UserAccess is the effective authorization of one user.
type UserAccess struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// ListUserAccess resolves the user's current roles and permissions from
// storage, bypassing the cache.
func (s *RBACService) ListUserAccess(ctx context.Context, userID string) (*UserAccess, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	roles, perms, err := s.claimsFor(ctx, userID)
	if err != nil {
		return nil, Internal(err)
	}
	return &UserAccess{UserID: userID, Roles: roles, Permissions: perms}, nil
}

func (s *RBACService) getRole(ctx context.Context, roleID string) (*model.Role, error) {
	role, err := s.Roles.GetRoleByID(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("role not found")
	}
	if err != nil {
		return nil, Internal(err)
	}
	return role, nil
}

// invalidateRole drops the projection of every holder of roleID.
func (s *RBACService) invalidateRole(ctx context.Context, roleID string) error {
	ids, err := s.Roles.UserIDsWithRole(ctx, roleID)
	if err != nil {
		return Internal(err)
	}
	for _, id := range ids {
		s.invalidate(ctx, id)
	}
	s.log.Info("role changed", "role_id", roleID, "invalidated", len(ids))
	return nil
}
