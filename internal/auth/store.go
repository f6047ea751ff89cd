package auth

import (
	"context"
	"time"

	"github.com/iliyamo/galleryhub/internal/model"
)

// AccountStore is the persistence contract the auth service depends on.
// Lookups return repository.ErrNotFound for a missing account and
// Create returns repository.ErrEmailExists for a duplicate email.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id string) (model.Account, error)
	Create(ctx context.Context, a *model.Account) error

	// UpdateLoginState atomically replaces the login state of one account
	// with fn(current). fn may run more than once when concurrent writers
	// race; an error from fn aborts the update and is returned unchanged.
	UpdateLoginState(ctx context.Context, id string, fn func(model.LoginState) (model.LoginState, error)) (model.LoginState, error)

	SetLastLogin(ctx context.Context, id string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id string) error
	CountByRole(ctx context.Context, role model.Role) (int, error)
}

// ResetTokenStore keeps hashed single-use password reset tokens.
type ResetTokenStore interface {
	Store(ctx context.Context, userID, tokenHash string, exp time.Time) error
	// Redeem atomically marks a live token used and stores passwordHash
	// for its owner, clearing the counter and lock, and returns the owner.
	// Unknown, expired or already consumed tokens yield
	// repository.ErrNotFound; on any error the token stays unused.
	Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
}

// Notifier receives account events. Implementations must not block the
// login path for long; publish failures are logged by the caller.
type Notifier interface {
	AccountLocked(ctx context.Context, a model.Account, until time.Time) error
	PasswordResetRequested(ctx context.Context, a model.Account, token string, exp time.Time) error
}

// PrincipalCache holds refreshed claims for a bounded window so that
// refresh mode does not hit the store on every request.
type PrincipalCache interface {
	Get(ctx context.Context, accountID string) (Claims, bool)
	Set(ctx context.Context, c Claims)
	Invalidate(ctx context.Context, accountID string)
}

// SettingsSource returns the current platform settings.
type SettingsSource interface {
	Get(ctx context.Context) (model.Settings, error)
}

type nopNotifier struct{}

func (nopNotifier) AccountLocked(context.Context, model.Account, time.Time) error { return nil }
func (nopNotifier) PasswordResetRequested(context.Context, model.Account, string, time.Time) error {
	return nil
}
