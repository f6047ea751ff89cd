package auth

import (
	"errors"
	"fmt"
	"time"
)

// Authentication outcomes. ErrInvalidCredentials deliberately covers both
// an unknown email and a wrong password.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountLocked      = errors.New("account is locked")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInsufficientRole   = errors.New("insufficient role")
	ErrExpired            = errors.New("session expired")
	ErrStoreUnavailable   = errors.New("account store unavailable")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrRegistrationClosed = errors.New("new registrations are disabled")
)

// LockedError carries the wait a locked-out caller has to observe.
// errors.Is(err, ErrAccountLocked) holds for every LockedError.
type LockedError struct {
	Until            time.Time
	RemainingMinutes int
}

func newLockedError(until, now time.Time) *LockedError {
	return &LockedError{Until: until, RemainingMinutes: RemainingMinutes(until, now)}
}

func (e *LockedError) Error() string {
	if e.RemainingMinutes == 1 {
		return "account is locked, try again in 1 minute"
	}
	return fmt.Sprintf("account is locked, try again in %d minutes", e.RemainingMinutes)
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StoreError wraps a transient account store failure. It matches
// ErrStoreUnavailable so callers can answer with a retryable status.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "account store: " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
