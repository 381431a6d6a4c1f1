package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/model"
)

// RoleRepo persists roles, permissions and the two join tables. Join rows
// are never deleted here; they are switched on and off through is_active.
type RoleRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewRoleRepo returns a RoleRepo bound to db.
func NewRoleRepo(db *sql.DB, clk clock.Clock) *RoleRepo {
	if clk == nil {
		clk = clock.System{}
	}
	return &RoleRepo{db: db, clock: clk}
}

// CreateRole inserts a role. A taken name yields ErrDuplicate.
func (r *RoleRepo) CreateRole(ctx context.Context, role *model.Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.CreatedAt = truncate(r.clock.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, is_active, created_at) VALUES (?,?,?,?)`,
		role.ID, role.Name, role.IsActive, dbTime(role.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

// GetRoleByName fetches a role by its unique name.
func (r *RoleRepo) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	return r.getRole(ctx, `SELECT id, name, is_active, created_at FROM roles WHERE name = ? LIMIT 1`, name)
}

// GetRoleByID fetches a role by id.
func (r *RoleRepo) GetRoleByID(ctx context.Context, id string) (*model.Role, error) {
	return r.getRole(ctx, `SELECT id, name, is_active, created_at FROM roles WHERE id = ? LIMIT 1`, id)
}

// SetRoleActive toggles a role as a whole.
func (r *RoleRepo) SetRoleActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE roles SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("setting role active flag: %w", err)
	}
	return requireRow(res)
}

// ListRoles returns all roles ordered by name.
func (r *RoleRepo) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, is_active, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []model.Role{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return roles, nil
}

// CreatePermission inserts a permission. A taken name yields ErrDuplicate;
// a taken resource/action pair yields ErrDuplicateAction.
func (r *RoleRepo) CreatePermission(ctx context.Context, p *model.Permission) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = truncate(r.clock.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, name, resource, action, is_active, created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, p.Resource, p.Action, p.IsActive, dbTime(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			if violatedColumn(err, "resource") {
				return ErrDuplicateAction
			}
			return ErrDuplicate
		}
		return fmt.Errorf("creating permission: %w", err)
	}
	return nil
}

// GetPermissionByID fetches a permission by id.
func (r *RoleRepo) GetPermissionByID(ctx context.Context, id string) (*model.Permission, error) {
	var p model.Permission
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, resource, action, is_active, created_at FROM permissions WHERE id = ? LIMIT 1`, id).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting permission: %w", err)
	}
	return &p, nil
}

// AssignRole links user and role, re-enabling an existing link if one was
// switched off.
func (r *RoleRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	return r.upsertLink(ctx,
		`UPDATE user_roles SET is_active = 1, assigned_at = ? WHERE user_id = ? AND role_id = ?`,
		`INSERT INTO user_roles (user_id, role_id, is_active, assigned_at) VALUES (?,?,1,?)`,
		userID, roleID)
}

// SetUserRoleActive toggles an existing user-role link.
func (r *RoleRepo) SetUserRoleActive(ctx context.Context, userID, roleID string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_roles SET is_active = ? WHERE user_id = ? AND role_id = ?`, active, userID, roleID)
	if err != nil {
		return fmt.Errorf("setting user role active flag: %w", err)
	}
	return requireRow(res)
}

// GrantPermission links role and permission, re-enabling an existing link.
func (r *RoleRepo) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	return r.upsertLink(ctx,
		`UPDATE role_permissions SET is_active = 1, assigned_at = ? WHERE role_id = ? AND permission_id = ?`,
		`INSERT INTO role_permissions (role_id, permission_id, is_active, assigned_at) VALUES (?,?,1,?)`,
		roleID, permissionID)
}

// SetRolePermissionActive toggles an existing role-permission link.
func (r *RoleRepo) SetRolePermissionActive(ctx context.Context, roleID, permissionID string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE role_permissions SET is_active = ? WHERE role_id = ? AND permission_id = ?`, active, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("setting role permission active flag: %w", err)
	}
	return requireRow(res)
}

// UserIDsWithRole lists users linked to roleID, used to invalidate cached
// projections after a role-wide change.
func (r *RoleRepo) UserIDsWithRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM user_roles WHERE role_id = ?`, roleID)
	if err != nil {
		return nil, fmt.Errorf("listing role members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning role member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// upsertLink runs update first and falls back to insert when no row
// matched. Both statements take (at, a, b) / (a, b, at) respectively.
func (r *RoleRepo) upsertLink(ctx context.Context, update, insert, a, b string) error {
	at := dbTime(r.clock.Now())
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning link transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, update, at, a, b)
	if err != nil {
		return fmt.Errorf("updating link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx, insert, a, b, at); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("inserting link: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing link: %w", err)
	}
	return nil
}

func (r *RoleRepo) getRole(ctx context.Context, query string, arg any) (*model.Role, error) {
	var role model.Role
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting role: %w", err)
	}
	return &role, nil
}
