package config

import (
	"errors"
	"fmt"
	"time"
)

// AuthPolicy collects the lockout, session and password-reset settings.
type AuthPolicy struct {
	LockThreshold  int
	LockDuration   time.Duration
	SessionMaxAge  time.Duration
	ClaimsMode     string // refresh or trust
	ClaimsCacheTTL time.Duration
	CookieName     string
	CookieSecure   bool
	ResetTokenTTL  time.Duration

	// FederatedSecret verifies identity assertions from the sign-in
	// gateway.  Empty disables federated sign-in.
	FederatedSecret   string
	FederatedAudience string

	// Bootstrap admin, created at startup when no admin exists yet.
	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// LoadAuthPolicy reads the auth settings and validates them.
func LoadAuthPolicy() (AuthPolicy, error) {
	p := AuthPolicy{
		LockThreshold:     envInt("LOCK_THRESHOLD", 5),
		LockDuration:      time.Duration(envInt("LOCK_DURATION_MIN", 15)) * time.Minute,
		SessionMaxAge:     time.Duration(envInt("SESSION_MAX_AGE_DAYS", 30)) * 24 * time.Hour,
		ClaimsMode:        envStr("CLAIMS_MODE", "refresh"),
		ClaimsCacheTTL:    envDur("CLAIMS_CACHE_TTL", 0),
		CookieName:        envStr("SESSION_COOKIE_NAME", "galleryhub_session"),
		CookieSecure:      envBool("SESSION_COOKIE_SECURE", true),
		ResetTokenTTL:     envDur("RESET_TOKEN_TTL", time.Hour),
		FederatedSecret:   envStr("FEDERATED_ASSERTION_SECRET", ""),
		FederatedAudience: envStr("FEDERATED_ASSERTION_AUDIENCE", "galleryhub"),
		AdminEmail:        envStr("ADMIN_EMAIL", ""),
		AdminName:         envStr("ADMIN_NAME", "Administrator"),
		AdminPassword:     envStr("ADMIN_PASSWORD", ""),
	}
	if err := p.Validate(); err != nil {
		return AuthPolicy{}, err
	}
	return p, nil
}

// Validate rejects settings the lockout and session logic cannot run with.
func (p AuthPolicy) Validate() error {
	var errs []error
	if p.LockThreshold < 1 {
		errs = append(errs, fmt.Errorf("LOCK_THRESHOLD must be >= 1, got %d", p.LockThreshold))
	}
	if p.LockDuration < time.Minute {
		errs = append(errs, fmt.Errorf("LOCK_DURATION_MIN must be >= 1, got %s", p.LockDuration))
	}
	if p.SessionMaxAge < 24*time.Hour {
		errs = append(errs, fmt.Errorf("SESSION_MAX_AGE_DAYS must be >= 1, got %s", p.SessionMaxAge))
	}
	switch p.ClaimsMode {
	case "refresh", "trust":
	default:
		errs = append(errs, fmt.Errorf("CLAIMS_MODE must be refresh or trust, got %q", p.ClaimsMode))
	}
	if p.ClaimsCacheTTL < 0 {
		errs = append(errs, errors.New("CLAIMS_CACHE_TTL must not be negative"))
	}
	if p.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("RESET_TOKEN_TTL must be positive"))
	}
	if (p.AdminEmail == "") != (p.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// BootstrapAdmin reports whether an initial admin account is configured.
func (p AuthPolicy) BootstrapAdmin() bool { return p.AdminEmail != "" }
