package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admin-auth/internal/logging"
	"github.com/iliyamo/admin-auth/internal/middleware"
	"github.com/iliyamo/admin-auth/internal/service"
)

// AuthHandler exposes the session use cases.
type AuthHandler struct {
	auth *service.AuthService
	log  *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthHandler{auth: auth, log: logger.With("component", "http")}
}

// Register: create the account and return a session (201).
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.IP, req.UserAgent = c.RealIP(), c.Request().UserAgent()

	ctx, cancel := requestContext(c)
	defer cancel()
	resp, err := h.auth.Register(ctx, req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify credentials and return a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req service.LoginRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.IP, req.UserAgent = c.RealIP(), c.Request().UserAgent()

	ctx, cancel := requestContext(c)
	defer cancel()
	resp, err := h.auth.Login(ctx, req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh: rotate the refresh token and return a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req service.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.IP = c.RealIP()

	ctx, cancel := requestContext(c)
	defer cancel()
	resp, err := h.auth.Refresh(ctx, req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout: revoke the given refresh token (204, also when it was already gone).
func (h *AuthHandler) Logout(c echo.Context) error {
	var req service.LogoutRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.IP = c.RealIP()

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.auth.Logout(ctx, req); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll: revoke every session of the token's owner (204).
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	var req service.LogoutRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.IP = c.RealIP()

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.auth.LogoutAllDevices(ctx, req); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type validateReq struct {
	AccessToken string `json:"access_token"`
}

// Validate: report whether an access token verifies. Always 200.
func (h *AuthHandler) Validate(c echo.Context) error {
	var req validateReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": h.auth.ValidateToken(req.AccessToken)})
}

// Me: the caller's identity straight from the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	claims := middleware.Claims(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":     claims.UserID(),
		"email":       claims.Email,
		"roles":       claims.Roles,
		"permissions": claims.Permissions,
		"expires_at":  claims.ExpiresAt.Time,
	})
}

// Sessions: the caller's active sessions.
func (h *AuthHandler) Sessions(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	sessions, err := h.auth.ListSessions(ctx, middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}
