package middleware

// identity.go holds the context keys JWTAuth fills and the accessors used by
// handlers and other middleware.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admin-auth/internal/utils"
)

const (
	ctxClaims = "claims"
	ctxUserID = "user_id"
)

// Claims returns the decoded access token of the request, or nil when the
// route is not behind JWTAuth.
func Claims(c echo.Context) *utils.AccessClaims {
	if cl, ok := c.Get(ctxClaims).(*utils.AccessClaims); ok {
		return cl
	}
	return nil
}

// UserID returns the authenticated subject, or "" for anonymous requests.
func UserID(c echo.Context) string {
	if v, ok := c.Get(ctxUserID).(string); ok {
		return v
	}
	return ""
}
