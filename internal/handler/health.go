package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health is a liveness endpoint used by load balancers and monitoring.
// It returns "ok" with 200 as long as the process serves requests.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports whether the database answers.  Redis is optional, so its
// state is shown but never fails the check.
func Ready(db Pinger, rdb *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		out := echo.Map{"database": "ok", "redis": "disabled"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			out["database"] = "unavailable"
			status = http.StatusServiceUnavailable
			c.Response().Header().Set("Retry-After", retryAfterSeconds)
		}
		if rdb != nil {
			out["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				out["redis"] = "unavailable"
			}
		}
		return c.JSON(status, out)
	}
}
