package model

import "time"

// User mirrors the users table. Email is stored lowercased and trimmed;
// Phone, when present, is stored in E.164 form.
type User struct {
	ID            string
	Email         string
	Phone         string // "" when not provided
	PasswordHash  string
	FirstName     string
	LastName      string
	IsActive      bool
	EmailVerified bool
	PhoneVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// Role is a named bundle of permissions.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is a grantable capability. Name is unique and so is the
// (Resource, Action) pair.
type Permission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRole links a user to a role. A link can be switched off through
// IsActive without deleting the row.
type UserRole struct {
	UserID     string
	RoleID     string
	IsActive   bool
	AssignedAt time.Time
}

// RolePermission links a role to a permission, soft-toggled like UserRole.
type RolePermission struct {
	RoleID       string
	PermissionID string
	IsActive     bool
	AssignedAt   time.Time
}

// AccessGraph is the RBAC data loaded for one user. Relations are kept as id
// references into the Roles and Permissions maps so the graph has no cycles
// and can be serialized as is.
type AccessGraph struct {
	UserID          string
	UserRoles       []UserRole
	Roles           map[string]Role
	RolePermissions map[string][]RolePermission // keyed by role id
	Permissions     map[string]Permission
}

// UserProjection is the read model returned to callers and stored in the
// session cache. It never carries the password hash.
type UserProjection struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	Roles         []string   `json:"roles"`
	Permissions   []string   `json:"permissions"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// Project builds the cacheable view of u with the given effective claims.
func (u *User) Project(roles, permissions []string) UserProjection {
	return UserProjection{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		Roles:         roles,
		Permissions:   permissions,
		CreatedAt:     u.CreatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}
