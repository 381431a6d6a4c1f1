package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/cache"
	"github.com/iliyamo/admin-auth/internal/model"
)

func TestRBAC_CreateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rbac.CreateRole(ctx, "User")
	e := requireKind(t, err, KindConflict)
	assert.Contains(t, e.Fields, "name")

	_, err = f.rbac.CreateRole(ctx, "  ")
	requireKind(t, err, KindValidation)

	_, err = f.rbac.CreatePermission(ctx, "posts:read", "posts", "read")
	require.NoError(t, err)
	_, err = f.rbac.CreatePermission(ctx, "posts:read", "posts", "list")
	e = requireKind(t, err, KindConflict)
	assert.Equal(t, []string{"name"}, keys(e.Fields))
	_, err = f.rbac.CreatePermission(ctx, "read-posts", "posts", "read")
	e = requireKind(t, err, KindConflict)
	assert.Equal(t, []string{"resource"}, keys(e.Fields))
	_, err = f.rbac.CreatePermission(ctx, "resource", "posts", "read")
	e = requireKind(t, err, KindConflict)
	assert.Equal(t, []string{"resource"}, keys(e.Fields))

	_, err = f.rbac.CreatePermission(ctx, "", "", "")
	e = requireKind(t, err, KindValidation)
	assert.ElementsMatch(t, []string{"name", "resource", "action"}, keys(e.Fields))
}

func TestRBAC_AssignmentsDriveAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "a@x.com", "d1")

	admin, err := f.rbac.CreateRole(ctx, "Admin")
	require.NoError(t, err)
	manage, err := f.rbac.CreatePermission(ctx, "users:manage", "users", "manage")
	require.NoError(t, err)
	require.NoError(t, f.rbac.GrantPermission(ctx, admin.ID, manage.ID))
	require.NoError(t, f.rbac.AssignRole(ctx, reg.User.ID, admin.ID))

	access, err := f.rbac.ListUserAccess(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "User"}, access.Roles)
	assert.Equal(t, []string{"users:manage"}, access.Permissions)

	require.NoError(t, f.rbac.SetRolePermissionActive(ctx, admin.ID, manage.ID, false))
	access, err = f.rbac.ListUserAccess(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Empty(t, access.Permissions)

	require.NoError(t, f.rbac.SetRoleActive(ctx, admin.ID, false))
	access, err = f.rbac.ListUserAccess(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"User"}, access.Roles)

	roles, err := f.rbac.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestRBAC_RoleChangesInvalidateHolders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com", "d1")
	b := f.register(t, "b@x.com", "d1")

	userRole, err := f.roles.GetRoleByName(ctx, "User")
	require.NoError(t, err)
	perm, err := f.rbac.CreatePermission(ctx, "posts:read", "posts", "read")
	require.NoError(t, err)

	require.NoError(t, f.rbac.GrantPermission(ctx, userRole.ID, perm.ID))

	for _, id := range []string{a.User.ID, b.User.ID} {
		var p model.UserProjection
		hit, err := f.cache.Get(ctx, cache.UserKey(id), &p)
		require.NoError(t, err)
		assert.False(t, hit, "holder %s still cached", id)
	}

	p, err := f.profiles.GetProfile(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts:read"}, p.Permissions)
}

func TestRBAC_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "a@x.com", "d1")
	role, err := f.rbac.CreateRole(ctx, "Editor")
	require.NoError(t, err)

	requireKind(t, f.rbac.AssignRole(ctx, "missing", role.ID), KindNotFound)
	requireKind(t, f.rbac.AssignRole(ctx, reg.User.ID, "missing"), KindNotFound)
	requireKind(t, f.rbac.SetUserRoleActive(ctx, reg.User.ID, role.ID, true), KindNotFound)
	requireKind(t, f.rbac.GrantPermission(ctx, role.ID, "missing"), KindNotFound)
	requireKind(t, f.rbac.SetRolePermissionActive(ctx, role.ID, "missing", true), KindNotFound)
	requireKind(t, f.rbac.SetRoleActive(ctx, "missing", true), KindNotFound)

	_, err = f.rbac.ListUserAccess(ctx, "missing")
	requireKind(t, err, KindNotFound)
}
