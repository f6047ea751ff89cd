package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
)

const testSecret = "test-session-secret"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memStore is an AccountStore whose UpdateLoginState runs under a mutex,
// which gives the same atomicity as the SQL compare-and-set.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	getErr   error
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]model.Account{}}
}

func (m *memStore) get(id string) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

func (m *memStore) put(a model.Account) {
	m.mu.Lock()
	m.accounts[a.ID] = a
	m.mu.Unlock()
}

func (m *memStore) GetByEmail(_ context.Context, email string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return model.Account{}, m.getErr
	}
	for _, a := range m.accounts {
		if a.Email == strings.ToLower(email) {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return model.Account{}, m.getErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (m *memStore) Create(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.accounts {
		if x.Email == a.Email {
			return repository.ErrEmailExists
		}
	}
	m.accounts[a.ID] = *a
	return nil
}

func (m *memStore) UpdateLoginState(_ context.Context, id string, fn func(model.LoginState) (model.LoginState, error)) (model.LoginState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return model.LoginState{}, repository.ErrNotFound
	}
	next, err := fn(a.Login)
	if err != nil {
		return a.Login, err
	}
	a.Login = next
	m.accounts[id] = a
	return next, nil
}

func (m *memStore) SetLastLogin(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(a *model.Account) { a.LastLoginAt = &at })
}

func (m *memStore) setPassword(id, hash string) error {
	return m.update(id, func(a *model.Account) {
		a.PasswordHash = hash
		a.Login = model.LoginState{}
	})
}

func (m *memStore) MarkEmailVerified(_ context.Context, id string) error {
	return m.update(id, func(a *model.Account) { a.EmailVerified = true })
}

func (m *memStore) CountByRole(_ context.Context, role model.Role) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *memStore) update(id string, fn func(*model.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&a)
	m.accounts[id] = a
	return nil
}

// memResets spends tokens against a memStore. setErr fails the password
// write, after which the token must still be usable.
type memResets struct {
	mu     sync.Mutex
	store  *memStore
	tokens map[string]memReset
	setErr error
}

type memReset struct {
	userID string
	exp    time.Time
	used   bool
}

func newMemResets(st *memStore) *memResets {
	return &memResets{store: st, tokens: map[string]memReset{}}
}

func (r *memResets) Store(_ context.Context, userID, hash string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[hash] = memReset{userID: userID, exp: exp}
	return nil
}

func (r *memResets) Redeem(_ context.Context, hash, passwordHash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok || t.used || !now.Before(t.exp) {
		return "", repository.ErrNotFound
	}
	if r.setErr != nil {
		return "", r.setErr
	}
	if err := r.store.setPassword(t.userID, passwordHash); err != nil {
		return "", err
	}
	t.used = true
	r.tokens[hash] = t
	return t.userID, nil
}

type recNotifier struct {
	mu     sync.Mutex
	locked []string
	resets map[string]string // account id -> raw token
}

func (n *recNotifier) AccountLocked(_ context.Context, a model.Account, _ time.Time) error {
	n.mu.Lock()
	n.locked = append(n.locked, a.ID)
	n.mu.Unlock()
	return nil
}

func (n *recNotifier) PasswordResetRequested(_ context.Context, a model.Account, token string, _ time.Time) error {
	n.mu.Lock()
	if n.resets == nil {
		n.resets = map[string]string{}
	}
	n.resets[a.ID] = token
	n.mu.Unlock()
	return nil
}

func seedAccount(t *testing.T, st *memStore, email, password string, role model.Role) model.Account {
	t.Helper()
	hash, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	a := model.Account{
		ID:           uuid.NewString(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Provider:     model.ProviderCredentials,
		Role:         role,
		IsActive:     true,
	}
	st.put(a)
	return a
}

func newTestSessions(t *testing.T, st AccountStore, clk *fakeClock, mode ClaimsMode, opts ...SessionOption) *Sessions {
	t.Helper()
	opts = append([]SessionOption{WithSessionClock(clk.Now)}, opts...)
	s, err := NewSessions(st, SessionConfig{Secret: testSecret, MaxAge: 30 * 24 * time.Hour, Issuer: "galleryhub", Mode: mode}, opts...)
	require.NoError(t, err)
	return s
}

func newTestService(t *testing.T, st *memStore, clk *fakeClock, opts ...Option) *Service {
	t.Helper()
	sess := newTestSessions(t, st, clk, ClaimsRefresh)
	opts = append([]Option{WithClock(clk.Now), WithBcryptCost(bcrypt.MinCost)}, opts...)
	svc, err := NewService(st, sess, opts...)
	require.NoError(t, err)
	return svc
}
