package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository/repotest"
)

var t0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newUser(email, phone string) *model.User {
	return &model.User{
		Email:        email,
		Phone:        phone,
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		IsActive:     true,
	}
}

func TestUserRepo_CreateAndLookup(t *testing.T) {
	db := repotest.Open(t)
	repo := NewUserRepo(db, clock.NewFixed(t0))
	ctx := context.Background()

	u := newUser("a@x.com", "+12015550123")
	require.NoError(t, repo.Create(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, t0, u.CreatedAt)

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)
	assert.Equal(t, "+12015550123", byID.Phone)
	assert.True(t, byID.IsActive)
	assert.Equal(t, t0, byID.CreatedAt)
	assert.Nil(t, byID.LastLoginAt)

	byEmail, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byPhone, err := repo.GetByPhone(ctx, "+12015550123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byPhone.ID)

	_, err = repo.GetByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_CreateConflicts(t *testing.T) {
	db := repotest.Open(t)
	repo := NewUserRepo(db, clock.NewFixed(t0))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("a@x.com", "+12015550123")))

	err := repo.Create(ctx, newUser("a@x.com", ""))
	assert.ErrorIs(t, err, ErrEmailExists)

	err = repo.Create(ctx, newUser("b@x.com", "+12015550123"))
	assert.ErrorIs(t, err, ErrPhoneExists)

	// the key decides, not the duplicated value
	require.NoError(t, repo.Create(ctx, newUser("phone@x.com", "")))
	err = repo.Create(ctx, newUser("phone@x.com", "+12015550199"))
	assert.ErrorIs(t, err, ErrEmailExists)

	// users without a phone do not collide with each other
	require.NoError(t, repo.Create(ctx, newUser("c@x.com", "")))
	require.NoError(t, repo.Create(ctx, newUser("d@x.com", "")))
}

func TestUserRepo_CreateWithRoles(t *testing.T) {
	db := repotest.Open(t)
	clk := clock.NewFixed(t0)
	repo := NewUserRepo(db, clk)
	roles := NewRoleRepo(db, clk)
	ctx := context.Background()

	role := &model.Role{Name: "User", IsActive: true}
	require.NoError(t, roles.CreateRole(ctx, role))

	u := newUser("a@x.com", "")
	require.NoError(t, repo.Create(ctx, u, role.ID))
	ids, err := roles.UserIDsWithRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{u.ID}, ids)

	// an unknown role fails the link and takes the user row with it
	err = repo.Create(ctx, newUser("b@x.com", ""), "no-such-role")
	require.Error(t, err)
	exists, err := repo.EmailExists(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepo_Exists(t *testing.T) {
	db := repotest.Open(t)
	repo := NewUserRepo(db, clock.NewFixed(t0))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("a@x.com", "+12015550123")))

	ok, err := repo.EmailExists(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.EmailExists(ctx, "z@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.PhoneExists(ctx, "+12015550123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserRepo_Mutations(t *testing.T) {
	db := repotest.Open(t)
	clk := clock.NewFixed(t0)
	repo := NewUserRepo(db, clk)
	ctx := context.Background()

	u := newUser("a@x.com", "")
	require.NoError(t, repo.Create(ctx, u))

	clk.Advance(time.Hour)
	require.NoError(t, repo.UpdateLastLogin(ctx, u.ID))
	require.NoError(t, repo.UpdateProfile(ctx, u.ID, "Grace", "Hopper", "+12015550123"))
	require.NoError(t, repo.SetActive(ctx, u.ID, false))
	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "new-hash"))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, t0.Add(time.Hour), *got.LastLoginAt)
	assert.Equal(t, "Grace", got.FirstName)
	assert.Equal(t, "+12015550123", got.Phone)
	assert.False(t, got.IsActive)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, repo.SetActive(ctx, "nope", true), ErrNotFound)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, "nope", "x"), ErrNotFound)
}

func TestUserRepo_UpdateProfilePhoneConflict(t *testing.T) {
	db := repotest.Open(t)
	repo := NewUserRepo(db, clock.NewFixed(t0))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("a@x.com", "+12015550123")))
	b := newUser("b@x.com", "")
	require.NoError(t, repo.Create(ctx, b))

	err := repo.UpdateProfile(ctx, b.ID, "B", "B", "+12015550123")
	assert.ErrorIs(t, err, ErrPhoneExists)
}

func TestUserRepo_LoadAccessGraph(t *testing.T) {
	db := repotest.Open(t)
	clk := clock.NewFixed(t0)
	users := NewUserRepo(db, clk)
	roles := NewRoleRepo(db, clk)
	ctx := context.Background()

	u := newUser("a@x.com", "")
	require.NoError(t, users.Create(ctx, u))

	empty, err := users.LoadAccessGraph(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, empty.UserRoles)

	editor := &model.Role{Name: "Editor", IsActive: true}
	viewer := &model.Role{Name: "Viewer", IsActive: true}
	require.NoError(t, roles.CreateRole(ctx, editor))
	require.NoError(t, roles.CreateRole(ctx, viewer))

	read := &model.Permission{Name: "posts:read", Resource: "posts", Action: "read", IsActive: true}
	write := &model.Permission{Name: "posts:write", Resource: "posts", Action: "write", IsActive: true}
	require.NoError(t, roles.CreatePermission(ctx, read))
	require.NoError(t, roles.CreatePermission(ctx, write))

	require.NoError(t, roles.AssignRole(ctx, u.ID, editor.ID))
	require.NoError(t, roles.AssignRole(ctx, u.ID, viewer.ID))
	require.NoError(t, roles.SetUserRoleActive(ctx, u.ID, viewer.ID, false))
	require.NoError(t, roles.GrantPermission(ctx, editor.ID, read.ID))
	require.NoError(t, roles.GrantPermission(ctx, editor.ID, write.ID))
	require.NoError(t, roles.GrantPermission(ctx, viewer.ID, read.ID))

	g, err := users.LoadAccessGraph(ctx, u.ID)
	require.NoError(t, err)

	// inactive links are loaded too; filtering happens during aggregation
	require.Len(t, g.UserRoles, 2)
	assert.Equal(t, editor.ID, g.UserRoles[0].RoleID)
	assert.True(t, g.UserRoles[0].IsActive)
	assert.False(t, g.UserRoles[1].IsActive)
	assert.Len(t, g.RolePermissions[editor.ID], 2)
	assert.Len(t, g.RolePermissions[viewer.ID], 1)
	assert.Equal(t, "posts:write", g.Permissions[write.ID].Name)
	assert.Equal(t, "Editor", g.Roles[editor.ID].Name)
}
