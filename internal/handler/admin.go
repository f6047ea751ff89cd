package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
)

// activeWindow is how far back "active users" in the stats look.
const activeWindow = 30 * 24 * time.Hour

// AdminHandler bundles the repositories behind the admin API.
type AdminHandler struct {
	Accounts *repository.AccountRepo
	Artworks *repository.ArtworkRepo
	Stats    *repository.StatsRepo
	Sessions *auth.Sessions
	Policy   auth.Policy
	Images   ImageStore
	// Purge drops cached public gallery pages after moderation; may be nil.
	Purge func(ctx context.Context) error
	Log   logging.Logger
	Now   func() time.Time
}

func NewAdminHandler(accounts *repository.AccountRepo, artworks *repository.ArtworkRepo, stats *repository.StatsRepo, sessions *auth.Sessions, policy auth.Policy, images ImageStore, purge func(context.Context) error, log logging.Logger) *AdminHandler {
	if accounts == nil || artworks == nil || stats == nil || sessions == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	if log == nil {
		log = logging.Nop()
	}
	return &AdminHandler{
		Accounts: accounts,
		Artworks: artworks,
		Stats:    stats,
		Sessions: sessions,
		Policy:   policy,
		Images:   images,
		Purge:    purge,
		Log:      log,
		Now:      time.Now,
	}
}

// ----- DTOs -----

type accountResp struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	Provider       string     `json:"provider"`
	IsActive       bool       `json:"is_active"`
	EmailVerified  bool       `json:"email_verified"`
	LockState      string     `json:"lock_state"`
	FailedAttempts int        `json:"failed_attempts"`
	LockExpiresAt  *time.Time `json:"lock_expires_at,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
type updateAccountReq struct {
	Role   *string `json:"role"`
	Active *bool   `json:"active"`
}
type moderateReq struct {
	Status string `json:"status"`
}

func (h *AdminHandler) toAccountResp(a model.Account, now time.Time) accountResp {
	out := accountResp{
		ID:             a.ID,
		Name:           a.Name,
		Email:          a.Email,
		Role:           string(a.Role),
		Provider:       a.Provider,
		IsActive:       a.IsActive,
		EmailVerified:  a.EmailVerified,
		LockState:      h.Policy.Evaluate(a.Login, now).String(),
		FailedAttempts: a.Login.FailedAttempts,
		LastLoginAt:    a.LastLoginAt,
		CreatedAt:      a.CreatedAt,
	}
	if out.LockState == auth.StateLocked.String() {
		out.LockExpiresAt = a.Login.LockExpiresAt
	}
	return out
}

// ListAccounts pages through accounts filtered by q, role and active.
func (h *AdminHandler) ListAccounts(c echo.Context) error {
	limit, offset := page(c)
	f := repository.AccountFilter{Query: c.QueryParam("q"), Limit: limit, Offset: offset}
	if v := c.QueryParam("role"); v != "" {
		role, ok := model.ParseRole(v)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be user or admin"})
		}
		f.Role = role
	}
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "active must be true or false"})
		}
		f.Active = &b
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	items, total, err := h.Accounts.List(ctx, f)
	if err != nil {
		return repoError(c, h.Log, err, "accounts")
	}
	now := h.Now()
	out := make([]accountResp, 0, len(items))
	for _, a := range items {
		out = append(out, h.toAccountResp(a, now))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "total": total})
}

// UpdateAccount changes role and/or active flag in one write.  A change
// that would leave no active admin is refused with 409 and nothing is
// applied.
func (h *AdminHandler) UpdateAccount(c echo.Context) error {
	id := c.Param("id")
	var req updateAccountReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Role == nil && req.Active == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no valid update fields provided"})
	}
	u := repository.AccountUpdate{Active: req.Active}
	if req.Role != nil {
		r, ok := model.ParseRole(*req.Role)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be user or admin", "field": "role"})
		}
		u.Role = &r
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	defer h.Sessions.Forget(context.WithoutCancel(ctx), id)

	if err := h.Accounts.Update(ctx, id, u); err != nil {
		return repoError(c, h.Log, err, "account")
	}
	a, err := h.Accounts.GetByID(ctx, id)
	if err != nil {
		return repoError(c, h.Log, err, "account")
	}
	return c.JSON(http.StatusOK, h.toAccountResp(a, h.Now()))
}

// UnlockAccount clears the failure counter and any lock.
func (h *AdminHandler) UnlockAccount(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	_, err := h.Accounts.UpdateLoginState(ctx, c.Param("id"), func(model.LoginState) (model.LoginState, error) {
		return model.LoginState{}, nil
	})
	if err != nil {
		return repoError(c, h.Log, err, "account")
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAccount removes an account with everything it owns.
func (h *AdminHandler) DeleteAccount(c echo.Context) error {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	// collect image keys first; the rows go with the account
	var keys []string
	for offset := uint64(0); ; offset += 100 {
		owned, total, err := h.Artworks.Search(ctx, repository.ArtworkFilter{ArtistID: id, Limit: 100, Offset: offset})
		if err != nil {
			return repoError(c, h.Log, err, "account")
		}
		for _, a := range owned {
			keys = append(keys, a.ObjectKey)
		}
		if len(owned) == 0 || offset+100 >= uint64(total) {
			break
		}
	}
	if err := h.Accounts.Delete(ctx, id); err != nil {
		return repoError(c, h.Log, err, "account")
	}
	h.Sessions.Forget(ctx, id)
	for _, k := range keys {
		dropImage(c, h.Log, h.Images, k)
	}
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

// ListArtworks lists artworks in any state, optionally by status.
func (h *AdminHandler) ListArtworks(c echo.Context) error {
	limit, offset := page(c)
	f := repository.ArtworkFilter{Query: c.QueryParam("q"), Sort: c.QueryParam("sort"), Limit: limit, Offset: offset}
	if s := c.QueryParam("status"); s != "" {
		st, ok := parseStatus(s)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be pending, approved or rejected"})
		}
		f.Status = st
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, total, err := h.Artworks.Search(ctx, f)
	if err != nil {
		return repoError(c, h.Log, err, "artworks")
	}
	out := make([]artworkResp, 0, len(items))
	for _, a := range items {
		out = append(out, toArtworkResp(ctx, h.Images, a))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "total": total})
}

func parseStatus(s string) (model.ArtworkStatus, bool) {
	switch st := model.ArtworkStatus(s); st {
	case model.StatusPending, model.StatusApproved, model.StatusRejected:
		return st, true
	}
	return "", false
}

// ModerateArtwork sets the moderation status of an artwork.
func (h *AdminHandler) ModerateArtwork(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req moderateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	st, ok := parseStatus(req.Status)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be pending, approved or rejected", "field": "status"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Artworks.UpdateStatus(ctx, id, st); err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	h.purge(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": st})
}

// DeleteArtwork removes any artwork and its image.
func (h *AdminHandler) DeleteArtwork(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	key, err := h.Artworks.Delete(ctx, id, "")
	if err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	dropImage(c, h.Log, h.Images, key)
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

// Overview returns the dashboard statistics.
func (h *AdminHandler) Overview(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	now := h.Now()
	st, err := h.Stats.Overview(ctx, now, now.Add(-activeWindow))
	if err != nil {
		return repoError(c, h.Log, err, "stats")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *AdminHandler) purge(c echo.Context) {
	purgeGallery(c, h.Log, h.Purge)
}
