package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admin-auth/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// writeError maps a service error kind to a status and a body that is safe to
// show. Internal details are logged and never returned.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		se = service.Internal(err)
	}

	switch se.Kind {
	case service.KindValidation:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "fields": se.Fields})
	case service.KindUnauthorized:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": se.Message})
	case service.KindConflict:
		body := echo.Map{"error": se.Message}
		for field := range se.Fields {
			body["field"] = field
		}
		return c.JSON(http.StatusConflict, body)
	case service.KindNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": se.Message})
	default:
		log.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}
