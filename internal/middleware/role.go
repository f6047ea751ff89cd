package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/model"
)

// RequireRole is the JSON flavour of Require used on API routes.  It
// assumes Authenticate ran earlier in the chain.
func RequireRole(role model.Role) echo.MiddlewareFunc {
	return Require(role, time.Now, JSONDeny)
}

// RequireSession admits any signed-in account.
func RequireSession() echo.MiddlewareFunc {
	return Require("", time.Now, JSONDeny)
}

// RequireRolePage is the browser flavour of Require: it redirects instead
// of answering with JSON.
func RequireRolePage(role model.Role, loginPath, homePath string) echo.MiddlewareFunc {
	return Require(role, time.Now, RedirectDeny(loginPath, homePath))
}
