package auth

import (
	"time"

	"github.com/iliyamo/galleryhub/internal/model"
)

// Decision is the outcome of Authorize. Reason is nil when Allowed.
type Decision struct {
	Allowed bool
	Reason  error
}

// Authorize checks c against an optional required role. It never renews
// an expired session and keeps no state, so it is safe on every request.
//
// Deny reasons are ErrUnauthenticated, ErrExpired and ErrInsufficientRole.
func Authorize(c *Claims, required model.Role, now time.Time) Decision {
	if c == nil || c.Version != ClaimsVersion || (c.AccountID == "" && c.Email == "") {
		return Decision{Reason: ErrUnauthenticated}
	}
	if c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time) {
		return Decision{Reason: ErrExpired}
	}
	if !c.Role.Satisfies(required) {
		return Decision{Reason: ErrInsufficientRole}
	}
	return Decision{Allowed: true}
}
