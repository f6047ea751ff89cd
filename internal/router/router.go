package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/galleryhub/internal/handler"
	"github.com/iliyamo/galleryhub/internal/middleware"
)

// RegisterRoutes registers the health checks.  /healthz answers while the process
// serves requests; /readyz also checks the database.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db, rdb))
}

// RegisterAuth registers the sign-in routes under /v1/auth and /v1/me.
// Every route that checks a password or issues a token goes through
// loginLimit.  Sessions are resolved by middleware.Authenticate on the
// Echo instance; /v1/me needs one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, loginLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, loginLimit)
	g.POST("/login", a.Login, loginLimit)
	g.POST("/forgot-password", a.ForgotPassword, loginLimit)
	g.POST("/reset-password", a.ResetPassword, loginLimit)
	g.POST("/federated", a.Federated, loginLimit)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.RequireSession())
}

// RegisterContact registers the public contact form.  It is open to
// guests, so it shares the login limiter.
func RegisterContact(e *echo.Echo, h *handler.ContactHandler, limit echo.MiddlewareFunc) {
	e.POST("/v1/contact", h.Create, limit)
}
