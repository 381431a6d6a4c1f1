package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admin-auth/internal/handler"
	"github.com/iliyamo/admin-auth/internal/middleware"
	"github.com/iliyamo/admin-auth/internal/utils"
)

// Permission claims that guard the admin surface.
const (
	PermManageUsers = "users:manage"
	PermManageRoles = "roles:manage"
)

// RegisterRoutes registers the endpoints that need no authentication.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers the session endpoints under /v1/auth and the
// caller's own endpoints under /v1/me. limiter guards login only; pass nil
// to leave it unlimited.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, u *handler.UserHandler, issuer *utils.TokenIssuer, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	if limiter != nil {
		g.POST("/login", a.Login, limiter)
	} else {
		g.POST("/login", a.Login)
	}
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/logout-all", a.LogoutAll)
	g.POST("/validate", a.Validate)

	me := e.Group("/v1/me", middleware.JWTAuth(issuer))
	me.GET("", a.Me)
	me.GET("/sessions", a.Sessions)
	me.GET("/profile", u.Profile)
	me.PUT("/profile", u.UpdateProfile)
	me.POST("/password", u.ChangePassword)
}

// RegisterAdmin registers account and RBAC administration under /v1/admin.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, issuer *utils.TokenIssuer) {
	users := e.Group("/v1/admin/users",
		middleware.JWTAuth(issuer),
		middleware.RequirePermission(PermManageUsers),
	)
	users.POST("/:id/deactivate", h.DeactivateUser)
	users.POST("/:id/activate", h.ActivateUser)
	users.GET("/:id/access", h.UserAccess)
	users.POST("/:id/roles", h.AssignRole, middleware.RequirePermission(PermManageRoles))
	users.PUT("/:id/roles/:role_id", h.SetUserRole, middleware.RequirePermission(PermManageRoles))

	roles := e.Group("/v1/admin",
		middleware.JWTAuth(issuer),
		middleware.RequirePermission(PermManageRoles),
	)
	roles.GET("/roles", h.ListRoles)
	roles.POST("/roles", h.CreateRole)
	roles.PUT("/roles/:id", h.SetRole)
	roles.POST("/roles/:id/permissions", h.GrantPermission)
	roles.PUT("/roles/:id/permissions/:permission_id", h.SetRolePermission)
	roles.POST("/permissions", h.CreatePermission)
}
