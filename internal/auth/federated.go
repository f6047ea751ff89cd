package auth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
)

// FederatedIdentity is what an identity provider asserts about a user.
// Nothing in it can grant a role.
type FederatedIdentity struct {
	Provider string
	Email    string
	Name     string
}

// FederatedSignIn signs in the account behind an asserted email, creating
// a verified user account on first sight unless new registrations are
// disabled.
func (s *Service) FederatedSignIn(ctx context.Context, id FederatedIdentity) (Session, error) {
	email := NormalizeEmail(id.Email)
	if err := ValidateEmail(email); err != nil {
		return Session{}, err
	}
	provider := strings.ToLower(strings.TrimSpace(id.Provider))
	if provider == "" || provider == model.ProviderCredentials {
		return Session{}, invalid("provider", "is not a federated provider")
	}

	a, err := s.store.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		a, err = s.createFederated(ctx, provider, email, id.Name)
		if err != nil {
			return Session{}, err
		}
	case err != nil:
		return Session{}, storeErr("get account", err)
	}

	if !a.IsActive {
		return Session{}, ErrAccountInactive
	}
	now := s.now()
	if s.policy.Evaluate(a.Login, now) == StateLocked {
		return Session{}, newLockedError(*a.Login.LockExpiresAt, now)
	}
	if !a.EmailVerified {
		if err := s.store.MarkEmailVerified(ctx, a.ID); err != nil {
			return Session{}, storeErr("mark email verified", err)
		}
	}
	if err := s.registerSuccess(ctx, a, now); err != nil {
		return Session{}, err
	}
	return s.sessions.Issue(ctx, a.ID)
}

func (s *Service) createFederated(ctx context.Context, provider, email, name string) (model.Account, error) {
	if err := s.registrationsOpen(ctx); err != nil {
		return model.Account{}, err
	}
	now := s.now()
	a := model.Account{
		ID:            uuid.NewString(),
		Name:          displayName(name, email),
		Email:         email,
		Provider:      provider,
		Role:          model.RoleUser,
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.Create(ctx, &a)
	if errors.Is(err, repository.ErrEmailExists) {
		// lost a race with a concurrent first sign-in
		a, err = s.store.GetByEmail(ctx, email)
	}
	if err != nil {
		return model.Account{}, storeErr("create federated account", err)
	}
	s.log.Info(ctx, "federated account created", "account_id", a.ID, "provider", provider)
	return a, nil
}

// displayName trims a provider name to MaxNameLen runes, falling back to
// the local part of the email.
func displayName(name, email string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		name = string([]rune(name)[:MaxNameLen])
	}
	return name
}

// AssertionClaims is the payload of a signed identity assertion handed to
// the federated endpoint by the identity gateway.
type AssertionClaims struct {
	Provider string `json:"provider"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// AssertionVerifier checks identity assertions signed with a shared
// HS256 secret.
type AssertionVerifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

func NewAssertionVerifier(secret, audience string) *AssertionVerifier {
	return &AssertionVerifier{
		secret:   []byte(secret),
		audience: audience,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Verify returns the identity carried by a valid, unexpired assertion.
func (v *AssertionVerifier) Verify(token string) (FederatedIdentity, error) {
	var c AssertionClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if _, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return FederatedIdentity{}, ErrUnauthenticated
	}
	if c.Email == "" || c.Provider == "" {
		return FederatedIdentity{}, ErrUnauthenticated
	}
	return FederatedIdentity{Provider: c.Provider, Email: c.Email, Name: c.Name}, nil
}
