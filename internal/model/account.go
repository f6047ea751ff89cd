package model

import (
	"strings"
	"time"
)

// Role is the single authorization role carried by an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a role name.  The second result is false for
// anything other than user or admin.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Satisfies reports whether r meets the required role.  An empty
// requirement is met by any role; admin meets every requirement.
func (r Role) Satisfies(required Role) bool {
	if required == "" {
		return r == RoleUser || r == RoleAdmin
	}
	if r == RoleAdmin {
		return true
	}
	return r == required
}

// LoginState is the brute-force protection part of an account: the
// consecutive failure counter and the lock flag with its expiry.  It is
// always read and written as one unit by the account store.
//
// Fields:
//  FailedAttempts – consecutive failed logins since the last success.
//  LastFailedAt   – time of the most recent failure (nil after a reset).
//  Locked         – lock flag; only meaningful together with LockExpiresAt.
//  LockExpiresAt  – when the lock lapses (nil when not locked).
type LoginState struct {
	FailedAttempts int        // users.failed_login_attempts
	LastFailedAt   *time.Time // users.last_failed_login
	Locked         bool       // users.is_locked
	LockExpiresAt  *time.Time // users.lock_expires_at (nullable)
}

// Account represents a registered principal as stored in the `users`
// table.  The password hash is never serialized; handlers expose
// accounts through their own response types.
//
// Fields:
//  ID            – stable identifier (UUID), never changes.
//  Name          – display name.
//  Email         – unique, lower-cased email address.
//  PasswordHash  – bcrypt hash; empty for federated-only accounts.
//  Provider      – "credentials" or the federated provider name.
//  Role          – user or admin.
//  IsActive      – inactive accounts never authenticate.
//  EmailVerified – informational flag, does not gate login.
//  Login         – failed-attempt counter and lock state.
//  LastLoginAt   – time of the last successful authentication.
//  CreatedAt     – timestamp of creation.
//  UpdatedAt     – timestamp of last update.
type Account struct {
	ID            string     // users.id
	Name          string     // users.name
	Email         string     // users.email
	PasswordHash  string     // users.password_hash
	Provider      string     // users.provider
	Role          Role       // users.role
	IsActive      bool       // users.is_active
	EmailVerified bool       // users.email_verified
	Login         LoginState // users.failed_login_attempts, is_locked, lock_expires_at
	LastLoginAt   *time.Time // users.last_login_at (nullable)
	CreatedAt     time.Time  // users.created_at
	UpdatedAt     time.Time  // users.updated_at
}

// ProviderCredentials marks accounts created through the password flow.
const ProviderCredentials = "credentials"

// ResetToken models an entry in the `password_reset_tokens` table.  Only
// the SHA-256 hash of the emailed token is stored.
type ResetToken struct {
	ID         uint64     // password_reset_tokens.id
	UserID     string     // password_reset_tokens.user_id
	TokenHash  string     // password_reset_tokens.token_hash
	ExpiresAt  time.Time  // password_reset_tokens.expires_at
	ConsumedAt *time.Time // password_reset_tokens.consumed_at (nullable)
	CreatedAt  time.Time  // password_reset_tokens.created_at
}
