package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
)

// SettingsSource reads the platform settings.  *cache.Settings implements it.
type SettingsSource interface {
	Get(ctx context.Context) (model.Settings, error)
}

// Maintenance answers 503 with the configured message while maintenance
// mode is on.  Admins pass, as do requests under one of the exempt path
// prefixes, so an admin can still sign in and turn it off.  It runs after
// Authenticate.  A settings read error lets the request through.
func Maintenance(src SettingsSource, log logging.Logger, exempt ...string) echo.MiddlewareFunc {
	if log == nil {
		log = logging.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if exempted(c.Request().URL.Path, exempt) {
				return next(c)
			}
			if cl, ok := ClaimsFrom(c); ok && cl.Role == model.RoleAdmin {
				return next(c)
			}
			st, err := src.Get(c.Request().Context())
			if err != nil {
				log.Warn(c.Request().Context(), "maintenance check skipped", "err", err)
				return next(c)
			}
			if !st.MaintenanceMode {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", "300")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"error":       st.MaintenanceMessage,
				"maintenance": true,
			})
		}
	}
}

func exempted(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
