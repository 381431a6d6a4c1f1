package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health reports liveness for load balancers. The database must answer a
// ping; Redis is optional and only reported.
func Health(db *sql.DB, rdb *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := echo.Map{"status": "ok", "database": "up", "redis": "disabled"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["status"], status["database"] = "degraded", "down"
				code = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			status["redis"] = "up"
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = "down"
			}
		}
		return c.JSON(code, status)
	}
}
