package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
	"github.com/iliyamo/galleryhub/internal/utils"
)

// DefaultResetTTL is how long a password reset token stays usable.
const DefaultResetTTL = time.Hour

// Service orchestrates sign-in, registration and password resets on top
// of an AccountStore. Lockout transitions are computed by Policy and
// persisted through AccountStore.UpdateLoginState before any call returns.
type Service struct {
	store    AccountStore
	sessions *Sessions
	policy   Policy
	now      func() time.Time
	notifier Notifier
	log      logging.Logger
	resets   ResetTokenStore
	settings SettingsSource
	cost     int
	resetTTL time.Duration

	// compared against for unknown emails so both paths cost one bcrypt run
	dummyHash string
}

type Option func(*Service)

func WithPolicy(p Policy) Option { return func(s *Service) { s.policy = p } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithResetTokens(r ResetTokenStore) Option { return func(s *Service) { s.resets = r } }

// WithSettings lets the platform settings close self-service sign-up.
func WithSettings(src SettingsSource) Option { return func(s *Service) { s.settings = src } }

func WithBcryptCost(cost int) Option { return func(s *Service) { s.cost = cost } }

func WithResetTTL(d time.Duration) Option { return func(s *Service) { s.resetTTL = d } }

func NewService(store AccountStore, sessions *Sessions, opts ...Option) (*Service, error) {
	s := &Service{
		store:    store,
		sessions: sessions,
		policy:   DefaultPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
		notifier: nopNotifier{},
		log:      logging.Nop(),
		cost:     bcrypt.DefaultCost,
		resetTTL: DefaultResetTTL,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	if s.cost < bcrypt.MinCost || s.cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", s.cost)
	}
	h, err := HashPassword(uuid.NewString(), s.cost)
	if err != nil {
		return nil, fmt.Errorf("build dummy hash: %w", err)
	}
	s.dummyHash = h
	return s, nil
}

func (s *Service) Policy() Policy { return s.policy }

// Login authenticates an email/password pair and returns a new session.
//
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
// An inactive account is rejected before the lock is consulted. While a
// lock is live every attempt gets a *LockedError and the counter is left
// alone; a lapsed lock is cleared by the next write.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, invalid("password", "is required")
	}

	a, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			VerifyPassword(s.dummyHash, password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, storeErr("get account", err)
	}
	if !a.IsActive {
		return Session{}, ErrAccountInactive
	}

	now := s.now()
	if s.policy.Evaluate(a.Login, now) == StateLocked {
		return Session{}, newLockedError(*a.Login.LockExpiresAt, now)
	}

	if !VerifyPassword(a.PasswordHash, password) {
		return Session{}, s.registerFailure(ctx, a, now)
	}
	if err := s.registerSuccess(ctx, a, now); err != nil {
		return Session{}, err
	}
	return s.sessions.Issue(ctx, a.ID)
}

func (s *Service) registerFailure(ctx context.Context, a model.Account, now time.Time) error {
	st, err := s.store.UpdateLoginState(ctx, a.ID, func(cur model.LoginState) (model.LoginState, error) {
		return s.policy.Fail(cur, now)
	})
	if err != nil {
		var le *LockedError
		if errors.As(err, &le) {
			return le
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return storeErr("record failure", err)
	}
	if s.policy.Evaluate(st, now) != StateLocked {
		s.log.Debug(ctx, "login failed", "account_id", a.ID, "failed_attempts", st.FailedAttempts)
		return ErrInvalidCredentials
	}

	until := *st.LockExpiresAt
	s.log.Warn(ctx, "account locked", "account_id", a.ID, "failed_attempts", st.FailedAttempts, "until", until)
	if err := s.notifier.AccountLocked(ctx, a, until); err != nil {
		s.log.Error(ctx, "publish account locked", "account_id", a.ID, "err", err)
	}
	return newLockedError(until, now)
}

// registerSuccess clears the counter and lock, then stamps the last login.
func (s *Service) registerSuccess(ctx context.Context, a model.Account, now time.Time) error {
	_, err := s.store.UpdateLoginState(ctx, a.ID, func(cur model.LoginState) (model.LoginState, error) {
		return s.policy.Succeed(cur, now)
	})
	if err != nil {
		var le *LockedError
		if errors.As(err, &le) {
			return le
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return storeErr("reset login state", err)
	}
	if err := s.store.SetLastLogin(ctx, a.ID, now); err != nil {
		s.log.Warn(ctx, "stamp last login", "account_id", a.ID, "err", err)
	}
	return nil
}

// RegisterInput is the payload of a credentials sign-up.
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Register creates a user account and signs it in. It fails with
// ErrRegistrationClosed while the settings disable new registrations.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if err := s.registrationsOpen(ctx); err != nil {
		return Session{}, err
	}
	a, err := s.createAccount(ctx, in, model.RoleUser)
	if err != nil {
		return Session{}, err
	}
	s.log.Info(ctx, "account registered", "account_id", a.ID)
	return s.sessions.Issue(ctx, a.ID)
}

// EnsureAdmin creates the first admin account when none exists. It is a
// no-op once any admin is present.
func (s *Service) EnsureAdmin(ctx context.Context, in RegisterInput) error {
	n, err := s.store.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return storeErr("count admins", err)
	}
	if n > 0 {
		return nil
	}
	a, err := s.createAccount(ctx, in, model.RoleAdmin)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "bootstrap admin created", "account_id", a.ID)
	return nil
}

func (s *Service) registrationsOpen(ctx context.Context) error {
	if s.settings == nil {
		return nil
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		return storeErr("load settings", err)
	}
	if !st.AllowNewRegistrations {
		return ErrRegistrationClosed
	}
	return nil
}

func (s *Service) createAccount(ctx context.Context, in RegisterInput, role model.Role) (model.Account, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if err := ValidateName(name); err != nil {
		return model.Account{}, err
	}
	if err := ValidateEmail(email); err != nil {
		return model.Account{}, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return model.Account{}, err
	}
	if in.ConfirmPassword != "" && in.ConfirmPassword != in.Password {
		return model.Account{}, invalid("confirm_password", "does not match password")
	}

	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	a := model.Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Provider:     model.ProviderCredentials,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, &a); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.Account{}, invalid("email", "is already registered")
		}
		return model.Account{}, storeErr("create account", err)
	}
	return a, nil
}

// RequestPasswordReset issues a single-use reset token for email and hands
// it to the notifier. The outcome is the same whether or not the address
// belongs to an account.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.resets == nil {
		return errors.New("password reset is not configured")
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	a, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return storeErr("get account", err)
	}
	if !a.IsActive {
		return nil
	}

	raw, err := utils.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	exp := s.now().Add(s.resetTTL)
	if err := s.resets.Store(ctx, a.ID, utils.HashToken(raw), exp); err != nil {
		return storeErr("store reset token", err)
	}
	if err := s.notifier.PasswordResetRequested(ctx, a, raw, exp); err != nil {
		s.log.Error(ctx, "publish password reset", "account_id", a.ID, "err", err)
	}
	return nil
}

// ResetPassword spends a reset token on a new password. Both happen in
// one store write, so a failure leaves the token usable. The new password
// also lifts any lock on the account.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if s.resets == nil {
		return errors.New("password reset is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if confirm != "" && confirm != password {
		return invalid("confirm_password", "does not match password")
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	userID, err := s.resets.Redeem(ctx, utils.HashToken(token), hash, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return storeErr("redeem reset token", err)
	}
	s.sessions.Forget(ctx, userID)
	s.log.Info(ctx, "password reset", "account_id", userID)
	return nil
}
