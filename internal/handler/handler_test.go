package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/cache"
	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/handler"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/repository/repotest"
	"github.com/iliyamo/admin-auth/internal/router"
	"github.com/iliyamo/admin-auth/internal/service"
	"github.com/iliyamo/admin-auth/internal/utils"
)

const password = "Passw0rd!"

type server struct {
	e     *echo.Echo
	clk   *clock.Fixed
	rbac  *service.RBACService
	roles *repository.RoleRepo
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := repotest.Open(t)
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	issuer, err := utils.NewTokenIssuer("0123456789abcdef0123456789abcdef", "admin-auth", "admin-api", 30*time.Minute, clk)
	require.NoError(t, err)

	roles := repository.NewRoleRepo(db, clk)
	deps := service.Deps{
		Users:  repository.NewUserRepo(db, clk),
		Roles:  roles,
		Tokens: repository.NewTokenRepo(db, clk),
		Hasher: utils.NewPasswordHasher(1000),
		Issuer: issuer,
		Cache:  cache.NewMemory(clk),
		Clock:  clk,
	}
	opts := service.Options{RefreshTTL: 30 * 24 * time.Hour, CacheTTL: time.Minute, DefaultRole: "User", PhoneRegion: "US"}
	require.NoError(t, roles.CreateRole(context.Background(), &model.Role{Name: "User", IsActive: true}))

	auth := service.NewAuthService(deps, opts)
	users := service.NewUserService(deps, opts)
	rbac := service.NewRBACService(deps)

	e := echo.New()
	router.RegisterRoutes(e, handler.Health(db, nil))
	router.RegisterAuth(e, handler.NewAuthHandler(auth, nil), handler.NewUserHandler(users, nil), issuer, nil)
	router.RegisterAdmin(e, handler.NewAdminHandler(users, rbac, nil), issuer)
	return &server{e: e, clk: clk, rbac: rbac, roles: roles}
}

func (s *server) do(t *testing.T, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if raw, ok := body.(string); ok {
		buf.WriteString(raw)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"email":            email,
		"password":         password,
		"confirm_password": password,
		"first_name":       "Ada",
		"last_name":        "Lovelace",
		"device_id":        "laptop",
	}
}

// register returns the access and refresh tokens of a fresh account.
func (s *server) register(t *testing.T, email string) (access, refresh, userID string) {
	t.Helper()
	rec, body := s.do(t, http.MethodPost, "/v1/auth/register", registerBody(email), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := body["user"].(map[string]any)
	return body["access_token"].(string), body["refresh_token"].(string), user["id"].(string)
}

func (s *server) login(t *testing.T, email string) (access, refresh string) {
	t.Helper()
	rec, body := s.do(t, http.MethodPost, "/v1/auth/login", map[string]any{
		"identifier": email, "password": password, "device_id": "laptop",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestRegisterAndMe(t *testing.T) {
	s := newServer(t)
	access, refresh, id := s.register(t, "Ada@Example.com")
	assert.NotEmpty(t, refresh)

	rec, body := s.do(t, http.MethodGet, "/v1/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["user_id"])
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, []any{"User"}, body["roles"])
}

func TestRegisterErrors(t *testing.T) {
	s := newServer(t)
	s.register(t, "ada@example.com")

	bad := registerBody("not-an-email")
	bad["confirm_password"] = "different1!"
	rec, body := s.do(t, http.MethodPost, "/v1/auth/register", bad, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", body["error"])
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "confirm_password")

	rec, body = s.do(t, http.MethodPost, "/v1/auth/register", registerBody("ADA@example.com"), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email", body["field"])

	rec, body = s.do(t, http.MethodPost, "/v1/auth/register", "{not json", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid body", body["error"])
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s := newServer(t)
	s.register(t, "ada@example.com")

	for _, ident := range []string{"ada@example.com", "nobody@example.com"} {
		rec, body := s.do(t, http.MethodPost, "/v1/auth/login", map[string]any{
			"identifier": ident, "password": "Wrong000!", "device_id": "laptop",
		}, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, service.MsgInvalidCredentials, body["error"])
	}
}

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	s := newServer(t)
	_, refresh, _ := s.register(t, "ada@example.com")

	s.clk.Advance(time.Minute)
	rec, body := s.do(t, http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": refresh, "device_id": "laptop",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, refresh, body["refresh_token"])

	rec, body = s.do(t, http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": refresh, "device_id": "laptop",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, service.MsgInvalidRefreshToken, body["error"])
}

func TestLogoutAndLogoutAll(t *testing.T) {
	s := newServer(t)
	_, first, _ := s.register(t, "ada@example.com")
	_, second := s.login(t, "ada@example.com")

	rec, _ := s.do(t, http.MethodPost, "/v1/auth/logout", map[string]any{"refresh_token": first}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/v1/auth/logout", map[string]any{"refresh_token": first}, "")
	require.Equal(t, http.StatusNoContent, rec.Code, "logout is idempotent")

	rec, _ = s.do(t, http.MethodPost, "/v1/auth/logout-all", map[string]any{"refresh_token": second}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": second, "device_id": "laptop",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/v1/auth/logout", map[string]any{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["fields"], "refresh_token")
}

func TestValidate(t *testing.T) {
	s := newServer(t)
	access, _, _ := s.register(t, "ada@example.com")

	_, body := s.do(t, http.MethodPost, "/v1/auth/validate", map[string]any{"access_token": access}, "")
	assert.Equal(t, true, body["valid"])

	_, body = s.do(t, http.MethodPost, "/v1/auth/validate", map[string]any{"access_token": access + "x"}, "")
	assert.Equal(t, false, body["valid"])

	s.clk.Advance(30 * time.Minute)
	_, body = s.do(t, http.MethodPost, "/v1/auth/validate", map[string]any{"access_token": access}, "")
	assert.Equal(t, false, body["valid"])
}

func TestProfileEndpoints(t *testing.T) {
	s := newServer(t)
	access, _, _ := s.register(t, "ada@example.com")

	rec, _ := s.do(t, http.MethodGet, "/v1/me/profile", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(t, http.MethodPut, "/v1/me/profile", map[string]any{
		"first_name": "Augusta", "last_name": "King", "phone": "(201) 555-0123",
	}, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "+12015550123", body["phone"])

	rec, body = s.do(t, http.MethodGet, "/v1/me/profile", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Augusta", body["first_name"])

	rec, body = s.do(t, http.MethodGet, "/v1/me/sessions", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sessions"], 1)

	rec, body = s.do(t, http.MethodPost, "/v1/me/password", map[string]any{
		"current_password": "Wrong000!", "new_password": "N3wPassw0rd!", "confirm_password": "N3wPassw0rd!",
	}, access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["fields"], "current_password")

	rec, _ = s.do(t, http.MethodPost, "/v1/me/password", map[string]any{
		"current_password": password, "new_password": "N3wPassw0rd!", "confirm_password": "N3wPassw0rd!",
	}, access)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/v1/me/sessions", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["sessions"])
}

func TestAdminRoutesRequirePermissions(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	userAccess, _, userID := s.register(t, "ada@example.com")

	rec, _ := s.do(t, http.MethodGet, "/v1/admin/roles", nil, userAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, _, adminID := s.register(t, "root@example.com")
	admin, err := s.rbac.CreateRole(ctx, "Admin")
	require.NoError(t, err)
	for _, name := range []string{router.PermManageUsers, router.PermManageRoles} {
		p, err := s.rbac.CreatePermission(ctx, name, name[:len(name)-len(":manage")], "manage")
		require.NoError(t, err)
		require.NoError(t, s.rbac.GrantPermission(ctx, admin.ID, p.ID))
	}
	require.NoError(t, s.rbac.AssignRole(ctx, adminID, admin.ID))
	adminAccess, _ := s.login(t, "root@example.com")

	rec, body := s.do(t, http.MethodPost, "/v1/admin/roles", map[string]any{"name": "Editor"}, adminAccess)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	editorID := body["id"].(string)

	rec, _ = s.do(t, http.MethodPost, "/v1/admin/roles", map[string]any{"name": "Editor"}, adminAccess)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/admin/users/"+userID+"/roles", map[string]any{"role_id": editorID}, adminAccess)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec, body = s.do(t, http.MethodGet, "/v1/admin/users/"+userID+"/access", nil, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Editor", "User"}, body["roles"])

	rec, body = s.do(t, http.MethodPut, "/v1/admin/users/"+userID+"/roles/"+editorID, map[string]any{}, adminAccess)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["fields"], "active")

	rec, _ = s.do(t, http.MethodPost, "/v1/admin/users/missing/deactivate", nil, adminAccess)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/admin/users/"+userID+"/deactivate", nil, adminAccess)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/v1/auth/login", map[string]any{
		"identifier": "ada@example.com", "password": password, "device_id": "laptop",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["redis"])
}
