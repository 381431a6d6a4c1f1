package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admin-auth/internal/logging"
	"github.com/iliyamo/admin-auth/internal/middleware"
	"github.com/iliyamo/admin-auth/internal/service"
)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	users *service.UserService
	log   *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &UserHandler{users: users, log: logger.With("component", "http")}
}

func (h *UserHandler) Profile(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.users.GetProfile(ctx, middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req service.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.users.UpdateProfile(ctx, middleware.UserID(c), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ChangePassword also ends every session, including the caller's (204).
func (h *UserHandler) ChangePassword(c echo.Context) error {
	var req service.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.IP = c.RealIP()
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.users.ChangePassword(ctx, middleware.UserID(c), req); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
