package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
)

// ClaimsVersion is bumped whenever the claim layout changes. Tokens that
// carry another version are rejected.
const ClaimsVersion = 1

// Claims is the signed principal carried by a session token.
type Claims struct {
	Version       int        `json:"ver"`
	AccountID     string     `json:"aid"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          model.Role `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	jwt.RegisteredClaims
}

// Session is a freshly signed token and the claims inside it.
type Session struct {
	Token     string
	Claims    Claims
	ExpiresAt time.Time
}

// ClaimsMode selects how request-time claims are derived.
type ClaimsMode string

const (
	// ClaimsRefresh re-reads the account on every request (or from the
	// principal cache within its TTL), so role changes and deactivation
	// apply at once.
	ClaimsRefresh ClaimsMode = "refresh"
	// ClaimsTrust accepts the signed claims until the token expires.
	// Role changes become visible only after the next sign-in.
	ClaimsTrust ClaimsMode = "trust"
)

// ParseClaimsMode maps a configuration value to a ClaimsMode.
func ParseClaimsMode(s string) (ClaimsMode, error) {
	switch ClaimsMode(s) {
	case ClaimsRefresh, "":
		return ClaimsRefresh, nil
	case ClaimsTrust:
		return ClaimsTrust, nil
	}
	return "", fmt.Errorf("unknown claims mode %q", s)
}

// SessionConfig holds the signing parameters of session tokens.
type SessionConfig struct {
	Secret string
	MaxAge time.Duration
	Issuer string
	Mode   ClaimsMode
}

// Sessions builds, signs and refreshes session claims.
type Sessions struct {
	store  AccountStore
	cfg    SessionConfig
	secret []byte
	cache  PrincipalCache
	now    func() time.Time

	// forgets counts invalidations; a refresh that overlapped one does
	// not write its claims back to the cache.
	forgets atomic.Uint64
}

type SessionOption func(*Sessions)

// WithPrincipalCache enables caching of refreshed claims.
func WithPrincipalCache(c PrincipalCache) SessionOption {
	return func(s *Sessions) { s.cache = c }
}

// WithSessionClock overrides time.Now, mostly for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Sessions) { s.now = now }
}

func NewSessions(store AccountStore, cfg SessionConfig, opts ...SessionOption) (*Sessions, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if cfg.MaxAge <= 0 {
		return nil, errors.New("session max age must be positive")
	}
	if cfg.Mode == "" {
		cfg.Mode = ClaimsRefresh
	}
	s := &Sessions{
		store:  store,
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Sessions) Mode() ClaimsMode       { return s.cfg.Mode }
func (s *Sessions) MaxAge() time.Duration { return s.cfg.MaxAge }

// Issue reads the account from the store and returns a signed session
// for it. Role and verification flag always come from the store.
func (s *Sessions) Issue(ctx context.Context, accountID string) (Session, error) {
	a, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, storeErr("get account", err)
	}
	if !a.IsActive {
		return Session{}, ErrAccountInactive
	}

	now := s.now()
	exp := now.Add(s.cfg.MaxAge)
	c := principal(a)
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   a.ID,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := s.Sign(c)
	if err != nil {
		return Session{}, err
	}
	s.Forget(ctx, a.ID)
	return Session{Token: tok, Claims: c, ExpiresAt: exp}, nil
}

// Refresh re-reads the account behind c, keyed by the account id and by
// email only when the id is absent. The registered claims (expiry
// included) are kept: a refresh never extends a session.
func (s *Sessions) Refresh(ctx context.Context, c Claims) (Claims, error) {
	if c.AccountID != "" && s.cache != nil {
		if hit, ok := s.cache.Get(ctx, c.AccountID); ok {
			hit.RegisteredClaims = c.RegisteredClaims
			return hit, nil
		}
	}

	var (
		a   model.Account
		err error
	)
	gen := s.forgets.Load()
	switch {
	case c.AccountID != "":
		a, err = s.store.GetByID(ctx, c.AccountID)
	case c.Email != "":
		a, err = s.store.GetByEmail(ctx, c.Email)
	default:
		return Claims{}, ErrUnauthenticated
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Claims{}, ErrUnauthenticated
		}
		return Claims{}, storeErr("refresh claims", err)
	}
	if !a.IsActive {
		return Claims{}, ErrUnauthenticated
	}

	fresh := principal(a)
	fresh.RegisteredClaims = c.RegisteredClaims
	if s.cache != nil && s.forgets.Load() == gen {
		s.cache.Set(ctx, fresh)
	}
	return fresh, nil
}

// Forget drops cached claims for an account after an admin change.
// Refreshes already reading the store when it runs are not cached.
func (s *Sessions) Forget(ctx context.Context, accountID string) {
	s.forgets.Add(1)
	if s.cache != nil {
		s.cache.Invalidate(ctx, accountID)
	}
}

// Sign serializes c as an HS256 JWT.
func (s *Sessions) Sign(c Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims. Expired tokens yield
// ErrExpired; anything else that fails verification is ErrUnauthenticated.
func (s *Sessions) Parse(token string) (Claims, error) {
	var c Claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrUnauthenticated
	}
	if c.Version != ClaimsVersion || (c.AccountID == "" && c.Email == "") {
		return Claims{}, ErrUnauthenticated
	}
	return c, nil
}

// Resolve turns a raw token into the claims a request acts under,
// refreshing them from the store in ClaimsRefresh mode.
func (s *Sessions) Resolve(ctx context.Context, token string) (Claims, error) {
	c, err := s.Parse(token)
	if err != nil {
		return Claims{}, err
	}
	if s.cfg.Mode == ClaimsTrust {
		return c, nil
	}
	return s.Refresh(ctx, c)
}

func principal(a model.Account) Claims {
	return Claims{
		Version:       ClaimsVersion,
		AccountID:     a.ID,
		Email:         a.Email,
		Name:          a.Name,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
	}
}
