package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
	"github.com/iliyamo/galleryhub/internal/storage"
)

// accountStore is an in-memory auth.AccountStore.
type accountStore struct {
	mu     sync.Mutex
	byID   map[string]model.Account
	getErr error
}

func newAccountStore() *accountStore { return &accountStore{byID: map[string]model.Account{}} }

func (s *accountStore) GetByEmail(_ context.Context, email string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return model.Account{}, s.getErr
	}
	for _, a := range s.byID {
		if a.Email == strings.ToLower(strings.TrimSpace(email)) {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (s *accountStore) GetByID(_ context.Context, id string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return model.Account{}, s.getErr
	}
	a, ok := s.byID[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (s *accountStore) Create(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.byID {
		if x.Email == a.Email {
			return repository.ErrEmailExists
		}
	}
	s.byID[a.ID] = *a
	return nil
}

func (s *accountStore) UpdateLoginState(_ context.Context, id string, fn func(model.LoginState) (model.LoginState, error)) (model.LoginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.LoginState{}, repository.ErrNotFound
	}
	next, err := fn(a.Login)
	if err != nil {
		return a.Login, err
	}
	a.Login = next
	s.byID[id] = a
	return next, nil
}

func (s *accountStore) SetLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byID[id]
	a.LastLoginAt = &at
	s.byID[id] = a
	return nil
}

func (s *accountStore) setPassword(id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash = hash
	a.Login = model.LoginState{}
	s.byID[id] = a
	return nil
}

func (s *accountStore) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byID[id]
	a.EmailVerified = true
	s.byID[id] = a
	return nil
}

func (s *accountStore) CountByRole(_ context.Context, role model.Role) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.byID {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

func (s *accountStore) seed(t *testing.T, id, email, password string, role model.Role, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	s.byID[id] = model.Account{
		ID: id, Name: "Test " + id, Email: email, PasswordHash: string(hash),
		Provider: model.ProviderCredentials, Role: role, IsActive: active,
	}
}

// resetTokens is an in-memory auth.ResetTokenStore writing to accounts.
type resetTokens struct {
	mu       sync.Mutex
	accounts *accountStore
	tokens   map[string]string
}

func (r *resetTokens) Store(_ context.Context, userID, hash string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[hash] = userID
	return nil
}

func (r *resetTokens) Redeem(_ context.Context, hash, passwordHash string, _ time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.tokens[hash]
	if !ok {
		return "", repository.ErrNotFound
	}
	if err := r.accounts.setPassword(id, passwordHash); err != nil {
		return "", err
	}
	delete(r.tokens, hash)
	return id, nil
}

// capturedResets records reset tokens handed to the notifier.
type capturedResets struct {
	mu     sync.Mutex
	tokens []string
}

func (n *capturedResets) AccountLocked(context.Context, model.Account, time.Time) error { return nil }

func (n *capturedResets) PasswordResetRequested(_ context.Context, _ model.Account, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, token)
	return nil
}

// images is an ImageStore double for a bucket taking PNGs up to 1 MiB.
type images struct {
	deleted []string
	limits  []storage.Limits
}

func (f *images) PresignUpload(_ context.Context, artistID, contentType string, size int64, lim storage.Limits) (storage.Upload, error) {
	f.limits = append(f.limits, lim)
	if contentType != "image/png" || (len(lim.Types) > 0 && !slices.Contains(lim.Types, contentType)) {
		return storage.Upload{}, storage.ErrUnsupportedType
	}
	if size > 1<<20 || (lim.MaxBytes > 0 && size > lim.MaxBytes) {
		return storage.Upload{}, storage.ErrTooLarge
	}
	return storage.Upload{Key: "artworks/" + artistID + "/2026/03/x.png", URL: "https://s3.test/put", Method: http.MethodPut}, nil
}

func (f *images) PresignView(_ context.Context, key string) (string, error) {
	return "https://s3.test/" + key, nil
}

func (f *images) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

// fixedSettings is a SettingsStore over one in-memory value.
type fixedSettings struct {
	mu  sync.Mutex
	st  model.Settings
	err error
}

func newFixedSettings() *fixedSettings { return &fixedSettings{st: model.DefaultSettings()} }

func (s *fixedSettings) Get(context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st, s.err
}

func (s *fixedSettings) Update(_ context.Context, fn func(model.Settings) (model.Settings, error)) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.Settings{}, s.err
	}
	next, err := fn(s.st)
	if err != nil {
		return model.Settings{}, err
	}
	s.st = next
	return next, nil
}

func (s *fixedSettings) set(fn func(*model.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

// logEntry is one line kept by recLogger.
type logEntry struct {
	level string
	msg   string
	args  []any
}

// recLogger is a logging.Logger keeping every entry.
type recLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recLogger) Debug(_ context.Context, msg string, args ...any) { l.add("debug", msg, args) }
func (l *recLogger) Info(_ context.Context, msg string, args ...any)  { l.add("info", msg, args) }
func (l *recLogger) Warn(_ context.Context, msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recLogger) Error(_ context.Context, msg string, args ...any) { l.add("error", msg, args) }
func (l *recLogger) With(...any) logging.Logger                       { return l }

// at returns the entries logged at level.
func (l *recLogger) at(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func newSessions(t *testing.T, store auth.AccountStore) *auth.Sessions {
	t.Helper()
	s, err := auth.NewSessions(store, auth.SessionConfig{
		Secret: "handler-test-secret",
		MaxAge: 24 * time.Hour,
		Issuer: "galleryhub",
		Mode:   auth.ClaimsRefresh,
	})
	require.NoError(t, err)
	return s
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func request(e *echo.Echo, method, target, body string, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, fn := range setup {
		fn(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+tok) }
}

var errDown = errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")
