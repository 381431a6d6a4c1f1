package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admin-auth/internal/logging"
	"github.com/iliyamo/admin-auth/internal/service"
)

// AdminHandler exposes account and RBAC administration. Routes are guarded
// by permission claims in the router.
type AdminHandler struct {
	users *service.UserService
	rbac  *service.RBACService
	log   *slog.Logger
}

func NewAdminHandler(users *service.UserService, rbac *service.RBACService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AdminHandler{users: users, rbac: rbac, log: logger.With("component", "http")}
}

type createRoleReq struct {
	Name string `json:"name"`
}

type createPermissionReq struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type linkReq struct {
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
}

type activeReq struct {
	Active *bool `json:"active"`
}

func missingActive(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{
		"error": "validation_failed", "fields": echo.Map{"active": "cannot be blank"},
	})
}

// ---- Users ----

func (h *AdminHandler) DeactivateUser(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.users.Deactivate(ctx, c.Param("id"), c.RealIP()); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ActivateUser(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.users.Activate(ctx, c.Param("id")); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) UserAccess(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	access, err := h.rbac.ListUserAccess(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, access)
}

func (h *AdminHandler) AssignRole(c echo.Context) error {
	var req linkReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.rbac.AssignRole(ctx, c.Param("id"), req.RoleID); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) SetUserRole(c echo.Context) error {
	var req activeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.Active == nil {
		return missingActive(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.rbac.SetUserRoleActive(ctx, c.Param("id"), c.Param("role_id"), *req.Active); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---- Roles and permissions ----

func (h *AdminHandler) ListRoles(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	roles, err := h.rbac.ListRoles(ctx)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": roles})
}

func (h *AdminHandler) CreateRole(c echo.Context) error {
	var req createRoleReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	role, err := h.rbac.CreateRole(ctx, req.Name)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, role)
}

func (h *AdminHandler) SetRole(c echo.Context) error {
	var req activeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.Active == nil {
		return missingActive(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.rbac.SetRoleActive(ctx, c.Param("id"), *req.Active); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) CreatePermission(c echo.Context) error {
	var req createPermissionReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.rbac.CreatePermission(ctx, req.Name, req.Resource, req.Action)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *AdminHandler) GrantPermission(c echo.Context) error {
	var req linkReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.rbac.GrantPermission(ctx, c.Param("id"), req.PermissionID); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) SetRolePermission(c echo.Context) error {
	var req activeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.Active == nil {
		return missingActive(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.rbac.SetRolePermissionActive(ctx, c.Param("id"), c.Param("permission_id"), *req.Active); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
