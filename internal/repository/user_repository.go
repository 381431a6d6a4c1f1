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

const userColumns = `id, email, phone, password_hash, first_name, last_name, is_active,
	email_verified, phone_verified, created_at, updated_at, last_login_at`

// UserRepo persists users and loads their RBAC graph.
type UserRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewUserRepo returns a UserRepo bound to db.
func NewUserRepo(db *sql.DB, clk clock.Clock) *UserRepo {
	if clk == nil {
		clk = clock.System{}
	}
	return &UserRepo{db: db, clock: clk}
}

// Create inserts u and links it to roleIDs in one transaction, so a failed
// link leaves no account behind. ID and timestamps are assigned here;
// callers are expected to have normalized email and phone already.
func (r *UserRepo) Create(ctx context.Context, u *model.User, roleIDs ...string) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := truncate(r.clock.Now())
	u.CreatedAt, u.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning user transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, nullString(u.Phone), u.PasswordHash, u.FirstName, u.LastName,
		u.IsActive, u.EmailVerified, u.PhoneVerified, dbTime(now), dbTime(now), nullTime(u.LastLoginAt))
	if err != nil {
		if isUniqueViolation(err) {
			if violatedColumn(err, "phone") {
				return ErrPhoneExists
			}
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id, is_active, assigned_at) VALUES (?,?,1,?)`,
			u.ID, roleID, dbTime(now)); err != nil {
			return fmt.Errorf("linking role %s: %w", roleID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
}

// GetByPhone fetches a user by E.164 phone.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = ? LIMIT 1`, phone)
}

// EmailExists reports whether a user already holds email.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM users WHERE email = ? LIMIT 1`, email)
}

// PhoneExists reports whether a user already holds phone.
func (r *UserRepo) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM users WHERE phone = ? LIMIT 1`, phone)
}

// UpdateProfile changes the mutable profile fields. An empty phone clears it.
func (r *UserRepo) UpdateProfile(ctx context.Context, id, firstName, lastName, phone string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, phone = ?, updated_at = ? WHERE id = ?`,
		firstName, lastName, nullString(phone), dbTime(r.clock.Now()), id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPhoneExists
		}
		return fmt.Errorf("updating profile: %w", err)
	}
	return requireRow(res)
}

// UpdateLastLogin stamps last_login_at.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	now := dbTime(r.clock.Now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return requireRow(res)
}

// SetActive activates or deactivates an account.
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, dbTime(r.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("setting user active flag: %w", err)
	}
	return requireRow(res)
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, dbTime(r.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireRow(res)
}

// LoadAccessGraph loads every role link of the user and every permission
// link of those roles, active or not. Filtering is left to the claim
// aggregation so the graph reflects storage exactly.
func (r *UserRepo) LoadAccessGraph(ctx context.Context, userID string) (*model.AccessGraph, error) {
	g := &model.AccessGraph{
		UserID:          userID,
		Roles:           map[string]model.Role{},
		RolePermissions: map[string][]model.RolePermission{},
		Permissions:     map[string]model.Permission{},
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ur.role_id, ur.is_active, ur.assigned_at, ro.name, ro.is_active, ro.created_at
		 FROM user_roles ur JOIN roles ro ON ro.id = ur.role_id
		 WHERE ur.user_id = ? ORDER BY ro.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user roles: %w", err)
	}
	for rows.Next() {
		var link model.UserRole
		var role model.Role
		if err := rows.Scan(&link.RoleID, &link.IsActive, &link.AssignedAt,
			&role.Name, &role.IsActive, &role.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning user role: %w", err)
		}
		link.UserID = userID
		role.ID = link.RoleID
		g.UserRoles = append(g.UserRoles, link)
		g.Roles[role.ID] = role
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("closing user roles: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user roles: %w", err)
	}
	if len(g.UserRoles) == 0 {
		return g, nil
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT rp.role_id, rp.permission_id, rp.is_active, rp.assigned_at,
		        p.name, p.resource, p.action, p.is_active, p.created_at
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = ? ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("loading role permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var link model.RolePermission
		var perm model.Permission
		if err := rows.Scan(&link.RoleID, &link.PermissionID, &link.IsActive, &link.AssignedAt,
			&perm.Name, &perm.Resource, &perm.Action, &perm.IsActive, &perm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning role permission: %w", err)
		}
		perm.ID = link.PermissionID
		g.RolePermissions[link.RoleID] = append(g.RolePermissions[link.RoleID], link)
		g.Permissions[perm.ID] = perm
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role permissions: %w", err)
	}
	return g, nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) exists(ctx context.Context, query string, arg any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return true, nil
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var phone sql.NullString
	var lastLogin sql.NullTime
	if err := s.Scan(&u.ID, &u.Email, &phone, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsActive, &u.EmailVerified, &u.PhoneVerified, &u.CreatedAt, &u.UpdatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Phone = phone.String
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	u.LastLoginAt = timePtr(lastLogin)
	return &u, nil
}

// requireRow maps a zero-row update to ErrNotFound. The MySQL DSN sets
// clientFoundRows so unchanged-but-matched rows still count.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
