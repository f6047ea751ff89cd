package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/middleware"
	"github.com/iliyamo/galleryhub/internal/repository"
)

// retryAfterSeconds is sent with 503 answers caused by the account store.
const retryAfterSeconds = "5"

// caller returns the claims of the signed-in account.  Routes using it sit
// behind middleware.Require; a miss answers 401 through unauthenticated.
func caller(c echo.Context) (*auth.Claims, bool) {
	return middleware.ClaimsFrom(c)
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	return n, err == nil && n > 0
}

// page reads limit and offset query parameters; bad values fall back to
// the repository defaults.
func page(c echo.Context) (limit, offset uint64) {
	limit, _ = strconv.ParseUint(c.QueryParam("limit"), 10, 64)
	offset, _ = strconv.ParseUint(c.QueryParam("offset"), 10, 64)
	return limit, offset
}

// logFailure records an unexpected error of the current request with the
// request id echo's RequestID middleware assigned.
func logFailure(c echo.Context, log logging.Logger, msg string, err error) {
	log.Error(c.Request().Context(), msg,
		"err", err,
		"method", c.Request().Method,
		"route", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)
}

// authError renders an error of the auth service.  Wrong password and
// unknown email share one answer.
func authError(c echo.Context, log logging.Logger, err error) error {
	var (
		verr   *auth.ValidationError
		locked *auth.LockedError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Error(), "field": verr.Field, "reason": verr.Reason})
	case errors.As(err, &locked):
		return c.JSON(http.StatusLocked, echo.Map{
			"error":             locked.Error(),
			"remaining_minutes": locked.RemainingMinutes,
			"locked_until":      locked.Until.UTC(),
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid email or password"})
	case errors.Is(err, auth.ErrAccountInactive):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account is deactivated, contact an administrator"})
	case errors.Is(err, auth.ErrExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
	case errors.Is(err, auth.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	case errors.Is(err, auth.ErrInsufficientRole):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, auth.ErrRegistrationClosed):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "new registrations are currently closed"})
	case errors.Is(err, auth.ErrInvalidResetToken):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reset link is invalid or has expired"})
	case errors.Is(err, auth.ErrStoreUnavailable):
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable, please retry"})
	}
	logFailure(c, log, "auth request failed", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// repoError renders a repository error; what names the resource.
func repoError(c echo.Context, log logging.Logger, err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found"})
	case errors.Is(err, repository.ErrLastAdmin):
		return c.JSON(http.StatusConflict, echo.Map{"error": "the last active admin cannot be removed, demoted or deactivated"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrLimitReached):
		return c.JSON(http.StatusForbidden, echo.Map{"error": what + " limit reached"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": what + " already exists"})
	}
	logFailure(c, log, what+" request failed", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
