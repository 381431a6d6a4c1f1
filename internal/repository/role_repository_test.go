package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository/repotest"
)

func TestRoleRepo_Duplicates(t *testing.T) {
	db := repotest.Open(t)
	repo := NewRoleRepo(db, clock.NewFixed(t0))
	ctx := context.Background()

	require.NoError(t, repo.CreateRole(ctx, &model.Role{Name: "User", IsActive: true}))
	assert.ErrorIs(t, repo.CreateRole(ctx, &model.Role{Name: "User", IsActive: true}), ErrDuplicate)

	require.NoError(t, repo.CreatePermission(ctx, &model.Permission{Name: "a", Resource: "posts", Action: "read", IsActive: true}))
	assert.ErrorIs(t, repo.CreatePermission(ctx,
		&model.Permission{Name: "a", Resource: "posts", Action: "write", IsActive: true}), ErrDuplicate)
	assert.ErrorIs(t, repo.CreatePermission(ctx,
		&model.Permission{Name: "b", Resource: "posts", Action: "read", IsActive: true}), ErrDuplicateAction)
}

func TestRoleRepo_Lookups(t *testing.T) {
	db := repotest.Open(t)
	repo := NewRoleRepo(db, clock.NewFixed(t0))
	ctx := context.Background()

	role := &model.Role{Name: "Admin", IsActive: true}
	require.NoError(t, repo.CreateRole(ctx, role))

	byName, err := repo.GetRoleByName(ctx, "Admin")
	require.NoError(t, err)
	assert.Equal(t, role.ID, byName.ID)

	byID, err := repo.GetRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", byID.Name)

	_, err = repo.GetRoleByName(ctx, "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SetRoleActive(ctx, role.ID, false))
	all, err := repo.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}

func TestRoleRepo_AssignReactivatesLink(t *testing.T) {
	db := repotest.Open(t)
	clk := clock.NewFixed(t0)
	users := NewUserRepo(db, clk)
	repo := NewRoleRepo(db, clk)
	ctx := context.Background()

	u := newUser("a@x.com", "")
	require.NoError(t, users.Create(ctx, u))
	role := &model.Role{Name: "User", IsActive: true}
	require.NoError(t, repo.CreateRole(ctx, role))

	require.NoError(t, repo.AssignRole(ctx, u.ID, role.ID))
	require.NoError(t, repo.SetUserRoleActive(ctx, u.ID, role.ID, false))
	require.NoError(t, repo.AssignRole(ctx, u.ID, role.ID))

	g, err := users.LoadAccessGraph(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, g.UserRoles, 1, "re-assigning must not add a second row")
	assert.True(t, g.UserRoles[0].IsActive)

	ids, err := repo.UserIDsWithRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{u.ID}, ids)

	assert.ErrorIs(t, repo.SetUserRoleActive(ctx, u.ID, "missing", true), ErrNotFound)
	assert.ErrorIs(t, repo.SetRolePermissionActive(ctx, role.ID, "missing", true), ErrNotFound)
}
