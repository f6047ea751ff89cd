package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/logging"
)

// requestTimeout bounds the store work of one request.
const requestTimeout = 5 * time.Second

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc      *auth.Service
	Sessions *auth.Sessions
	// Verifier checks federated sign-in assertions; nil disables them.
	Verifier *auth.AssertionVerifier
	Cookie   CookieConfig
	Log      logging.Logger
}

func NewAuthHandler(svc *auth.Service, sessions *auth.Sessions, verifier *auth.AssertionVerifier, cookie CookieConfig, log logging.Logger) *AuthHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &AuthHandler{Svc: svc, Sessions: sessions, Verifier: verifier, Cookie: cookie, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}
type federatedReq struct {
	Assertion string `json:"assertion"`
}

type userPart struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}
type sessionResp struct {
	User      userPart  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func userFromClaims(cl auth.Claims) userPart {
	return userPart{
		ID:            cl.AccountID,
		Name:          cl.Name,
		Email:         cl.Email,
		Role:          string(cl.Role),
		EmailVerified: cl.EmailVerified,
	}
}

// startSession sets the session cookie and answers with the session body.
// The token is in the body too, for API clients that send it as a bearer.
func (h *AuthHandler) startSession(c echo.Context, status int, s auth.Session) error {
	c.SetCookie(&http.Cookie{
		Name:     h.Cookie.Name,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(status, sessionResp{User: userFromClaims(s.Claims), Token: s.Token, ExpiresAt: s.ExpiresAt})
}

// Register: create a user account and sign it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Svc.Register(ctx, auth.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return authError(c, h.Log, err)
	}
	return h.startSession(c, http.StatusCreated, s)
}

// Login: verify credentials, honouring the lockout policy.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return authError(c, h.Log, err)
	}
	return h.startSession(c, http.StatusOK, s)
}

// Logout clears the session cookie.  Sessions are stateless, so a copied
// token stays valid until it expires; in refresh mode deactivating the
// account revokes it.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}

// Me returns the principal the current request acts as.
func (h *AuthHandler) Me(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	var exp time.Time
	if cl.ExpiresAt != nil {
		exp = cl.ExpiresAt.Time
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":        userFromClaims(*cl),
		"expires_at":  exp,
		"claims_mode": string(h.Sessions.Mode()),
	})
}

// ForgotPassword always answers 202 so the response does not reveal
// whether the email belongs to an account.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.RequestPasswordReset(ctx, req.Email); err != nil {
		return authError(c, h.Log, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "if the address belongs to an account, a reset link has been sent",
	})
}

// ResetPassword redeems a reset token for a new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.ResetPassword(ctx, req.Token, req.Password, req.ConfirmPassword); err != nil {
		return authError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated, please sign in"})
}

// Federated signs in with an identity asserted by the sign-in gateway.
func (h *AuthHandler) Federated(c echo.Context) error {
	if h.Verifier == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "federated sign-in is not enabled"})
	}
	var req federatedReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Assertion) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "assertion required"})
	}
	id, err := h.Verifier.Verify(strings.TrimSpace(req.Assertion))
	if err != nil {
		return authError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Svc.FederatedSignIn(ctx, id)
	if err != nil {
		return authError(c, h.Log, err)
	}
	return h.startSession(c, http.StatusOK, s)
}
