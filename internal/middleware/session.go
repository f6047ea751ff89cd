package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/model"
)

// Context keys set by Authenticate.
const (
	ClaimsKey     = "claims"
	sessionErrKey = "session_error"
)

// SessionResolver turns a raw session token into current claims.
// *auth.Sessions implements it.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (auth.Claims, error)
}

// SessionToken returns the session token of the request.  An
// "Authorization: Bearer" header wins over the session cookie so API
// clients can act independently of a browser session.
func SessionToken(c echo.Context, cookieName string) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if ck, err := c.Cookie(cookieName); err == nil {
		return ck.Value
	}
	return ""
}

// Authenticate resolves the session token, when one is present, and stores
// the claims under ClaimsKey.  It never rejects a request; Require decides
// what a route needs.  A resolve error is kept so Require can tell an
// expired session or an unavailable store from an anonymous caller.
func Authenticate(r SessionResolver, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := SessionToken(c, cookieName)
			if raw == "" {
				return next(c)
			}
			cl, err := r.Resolve(c.Request().Context(), raw)
			if err != nil {
				c.Set(sessionErrKey, err)
				return next(c)
			}
			c.Set(ClaimsKey, &cl)
			c.Set("user_id", cl.AccountID)
			c.Set("role", string(cl.Role))
			return next(c)
		}
	}
}

// ClaimsFrom returns the claims stored by Authenticate.
func ClaimsFrom(c echo.Context) (*auth.Claims, bool) {
	cl, ok := c.Get(ClaimsKey).(*auth.Claims)
	return cl, ok && cl != nil
}

// DenyFunc renders a refused request.  reason is one of
// auth.ErrUnauthenticated, auth.ErrExpired or auth.ErrInsufficientRole.
type DenyFunc func(c echo.Context, reason error) error

// Require admits the request only when auth.Authorize allows the stored
// claims for role.  An empty role admits any signed-in account.  When the
// account store could not be reached the request fails with 503 whatever
// deny mode is used.
func Require(role model.Role, now func() time.Time, deny DenyFunc) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err, ok := c.Get(sessionErrKey).(error); ok {
				if errors.Is(err, auth.ErrStoreUnavailable) {
					c.Response().Header().Set("Retry-After", "5")
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
				}
				if errors.Is(err, auth.ErrExpired) {
					return deny(c, auth.ErrExpired)
				}
				return deny(c, auth.ErrUnauthenticated)
			}
			cl, _ := ClaimsFrom(c)
			if d := auth.Authorize(cl, role, now()); !d.Allowed {
				return deny(c, d.Reason)
			}
			return next(c)
		}
	}
}

// JSONDeny answers 401 for a missing or expired session and 403 for a
// missing role.
func JSONDeny(c echo.Context, reason error) error {
	switch {
	case errors.Is(reason, auth.ErrInsufficientRole):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(reason, auth.ErrExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
	}
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

// RedirectDeny sends browsers without a session to loginPath, carrying
// the requested path in "next", and signed-in accounts lacking the role
// to homePath.
func RedirectDeny(loginPath, homePath string) DenyFunc {
	return func(c echo.Context, reason error) error {
		if errors.Is(reason, auth.ErrInsufficientRole) {
			return c.Redirect(http.StatusSeeOther, homePath)
		}
		q := url.Values{"next": {c.Request().URL.RequestURI()}}
		return c.Redirect(http.StatusSeeOther, loginPath+"?"+q.Encode())
	}
}
