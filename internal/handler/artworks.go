package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
	"github.com/iliyamo/galleryhub/internal/storage"
)

// Field limits of artworks and comments.
const (
	maxTitleLen       = 100
	maxDescriptionLen = 1000
	maxTags           = 10
	maxTagLen         = 30
	maxCommentLen     = 1000
)

// ImageStore signs image URLs.  *storage.Store implements it.
type ImageStore interface {
	PresignUpload(ctx context.Context, artistID, contentType string, size int64, lim storage.Limits) (storage.Upload, error)
	PresignView(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// GalleryHandler serves the public gallery and the artist endpoints.
type GalleryHandler struct {
	Artworks *repository.ArtworkRepo
	Likes    *repository.LikeRepo
	Comments *repository.CommentRepo
	// Images is nil when no bucket is configured; uploads then answer 503.
	Images ImageStore
	// Settings is nil in setups without a settings table; the defaults
	// apply then.
	Settings SettingsSource
	// Purge drops cached public gallery pages; may be nil.
	Purge func(ctx context.Context) error
	Log   logging.Logger
}

func NewGalleryHandler(artworks *repository.ArtworkRepo, likes *repository.LikeRepo, comments *repository.CommentRepo, images ImageStore, settings SettingsSource, purge func(context.Context) error, log logging.Logger) *GalleryHandler {
	if artworks == nil || likes == nil || comments == nil {
		panic("nil repository passed to NewGalleryHandler")
	}
	if log == nil {
		log = logging.Nop()
	}
	return &GalleryHandler{
		Artworks: artworks,
		Likes:    likes,
		Comments: comments,
		Images:   images,
		Settings: settings,
		Purge:    purge,
		Log:      log,
	}
}

// ----- DTOs -----

type uploadReq struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}
type createArtworkReq struct {
	ObjectKey   string   `json:"object_key"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	IsPublic    *bool    `json:"is_public"`
}
type commentReq struct {
	Body string `json:"body"`
}

type artworkResp struct {
	ID          uint64    `json:"id"`
	ArtistID    string    `json:"artist_id"`
	ArtistName  string    `json:"artist_name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Views       uint64    `json:"views"`
	Likes       uint64    `json:"likes"`
	Liked       *bool     `json:"liked,omitempty"`
	Status      string    `json:"status"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
type commentResp struct {
	ID         uint64    `json:"id"`
	ArtworkID  uint64    `json:"artwork_id"`
	UserID     string    `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func toArtworkResp(ctx context.Context, images ImageStore, a model.Artwork) artworkResp {
	out := artworkResp{
		ID:          a.ID,
		ArtistID:    a.ArtistID,
		ArtistName:  a.ArtistName,
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
		Tags:        a.Tags,
		Views:       a.Views,
		Likes:       a.Likes,
		Status:      string(a.Status),
		IsPublic:    a.IsPublic,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if images != nil {
		if u, err := images.PresignView(ctx, a.ObjectKey); err == nil {
			out.ImageURL = u
		}
	}
	return out
}

func toCommentResp(c model.Comment) commentResp {
	return commentResp{
		ID:         c.ID,
		ArtworkID:  c.ArtworkID,
		UserID:     c.UserID,
		AuthorName: c.AuthorName,
		Body:       c.Body,
		CreatedAt:  c.CreatedAt,
	}
}

// normalizeTags lower-cases, trims and de-duplicates tags.
func normalizeTags(in []string) ([]string, string) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLen {
			return nil, "tags must be at most 30 characters"
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, "at most 10 tags are allowed"
	}
	return out, ""
}

// visible reports whether the caller may see a.  Approved public artworks
// are visible to everyone; anything else only to its artist and admins.
func visible(a model.Artwork, c echo.Context) bool {
	if a.Status == model.StatusApproved && a.IsPublic {
		return true
	}
	cl, ok := caller(c)
	return ok && (cl.AccountID == a.ArtistID || cl.Role == model.RoleAdmin)
}

// PresignUpload hands the artist a signed URL to PUT one image to.
func (h *GalleryHandler) PresignUpload(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	if h.Images == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "uploads are not configured"})
	}
	var req uploadReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	st, err := h.settings(c)
	if err != nil {
		return settingsUnavailable(c, h.Log, err)
	}
	if !st.AllowArtworkUploads {
		return uploadsDisabled(c)
	}
	lim := storage.Limits{MaxBytes: st.MaxFileBytes(), Types: st.AllowedFileTypes}
	up, err := h.Images.PresignUpload(c.Request().Context(), cl.AccountID, req.ContentType, req.Size, lim)
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		return c.JSON(http.StatusUnsupportedMediaType, echo.Map{"error": err.Error()})
	case errors.Is(err, storage.ErrTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": err.Error()})
	case err != nil:
		logFailure(c, h.Log, "presign upload", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "presign failed"})
	}
	return c.JSON(http.StatusCreated, up)
}

// Create registers an uploaded image as an artwork.  It awaits moderation
// unless the settings turn approval off.
func (h *GalleryHandler) Create(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	var req createArtworkReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	title := strings.TrimSpace(req.Title)
	desc := strings.TrimSpace(req.Description)
	category := strings.ToLower(strings.TrimSpace(req.Category))
	switch {
	case !storage.OwnsKey(req.ObjectKey, cl.AccountID):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "object_key was not issued to you", "field": "object_key"})
	case title == "" || utf8.RuneCountInString(title) > maxTitleLen:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title must be 1-100 characters", "field": "title"})
	case utf8.RuneCountInString(desc) > maxDescriptionLen:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "description must be at most 1000 characters", "field": "description"})
	case !model.IsCategory(category):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown category", "field": "category"})
	}
	tags, msg := normalizeTags(req.Tags)
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "field": "tags"})
	}
	st, err := h.settings(c)
	if err != nil {
		return settingsUnavailable(c, h.Log, err)
	}
	if !st.AllowArtworkUploads {
		return uploadsDisabled(c)
	}
	status := model.StatusPending
	if !st.RequireArtworkApproval {
		status = model.StatusApproved
	}

	a := model.Artwork{
		ArtistID:    cl.AccountID,
		Title:       title,
		Description: desc,
		ObjectKey:   req.ObjectKey,
		Category:    category,
		Tags:        tags,
		Status:      status,
		IsPublic:    req.IsPublic == nil || *req.IsPublic,
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := h.Artworks.Create(ctx, &a, st.MaxArtworksPerUser); err != nil {
		if errors.Is(err, repository.ErrLimitReached) {
			return c.JSON(http.StatusForbidden, echo.Map{
				"error": fmt.Sprintf("you have reached the limit of %d artworks", st.MaxArtworksPerUser),
			})
		}
		return repoError(c, h.Log, err, "artwork")
	}
	if a.Status == model.StatusApproved && a.IsPublic {
		h.purge(c)
	}
	return c.JSON(http.StatusCreated, toArtworkResp(ctx, h.Images, a))
}

// List browses the public gallery: approved, public artworks only.
func (h *GalleryHandler) List(c echo.Context) error {
	limit, offset := page(c)
	f := repository.ArtworkFilter{
		Query:      c.QueryParam("q"),
		Category:   strings.ToLower(c.QueryParam("category")),
		Tag:        strings.ToLower(c.QueryParam("tag")),
		ArtistID:   c.QueryParam("artist"),
		Status:     model.StatusApproved,
		PublicOnly: true,
		Sort:       c.QueryParam("sort"),
		Limit:      limit,
		Offset:     offset,
	}
	return h.list(c, f)
}

// Mine lists the caller's own artworks in every moderation state.
func (h *GalleryHandler) Mine(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	limit, offset := page(c)
	return h.list(c, repository.ArtworkFilter{ArtistID: cl.AccountID, Limit: limit, Offset: offset})
}

func (h *GalleryHandler) list(c echo.Context, f repository.ArtworkFilter) error {
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

// Get returns one artwork and counts the view.
func (h *GalleryHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Artworks.GetByID(ctx, id)
	if err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	if !visible(a, c) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "artwork not found"})
	}
	if err := h.Artworks.IncrementViews(ctx, id); err == nil {
		a.Views++
	}

	out := toArtworkResp(ctx, h.Images, a)
	if cl, ok := caller(c); ok {
		if liked, err := h.Likes.Liked(ctx, cl.AccountID, []uint64{id}); err == nil {
			v := liked[id]
			out.Liked = &v
		}
	}
	return c.JSON(http.StatusOK, out)
}

// Delete removes one of the caller's artworks and its image.
func (h *GalleryHandler) Delete(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	key, err := h.Artworks.Delete(ctx, id, cl.AccountID)
	if err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	dropImage(c, h.Log, h.Images, key)
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

// dropImage deletes a stored image; a failure only leaves an orphan
// object behind, so it is logged and not reported.
func dropImage(c echo.Context, log logging.Logger, images ImageStore, key string) {
	if images == nil || key == "" {
		return
	}
	if err := images.Delete(c.Request().Context(), key); err != nil {
		log.Warn(c.Request().Context(), "delete image", "key", key, "err", err)
	}
}

func (h *GalleryHandler) settings(c echo.Context) (model.Settings, error) {
	if h.Settings == nil {
		return model.DefaultSettings(), nil
	}
	return h.Settings.Get(c.Request().Context())
}

func (h *GalleryHandler) purge(c echo.Context) {
	purgeGallery(c, h.Log, h.Purge)
}

// ToggleLike likes the artwork, or takes the like back.
func (h *GalleryHandler) ToggleLike(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Artworks.GetByID(ctx, id)
	if err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	if !visible(a, c) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "artwork not found"})
	}
	liked, count, err := h.Likes.Toggle(ctx, id, cl.AccountID)
	if err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	return c.JSON(http.StatusOK, echo.Map{"liked": liked, "likes": count})
}

// ListComments returns the comments of a visible artwork, oldest first.
func (h *GalleryHandler) ListComments(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Artworks.GetByID(ctx, id)
	if err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	if !visible(a, c) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "artwork not found"})
	}
	limit, offset := page(c)
	items, err := h.Comments.ListByArtwork(ctx, id, limit, offset)
	if err != nil {
		return repoError(c, h.Log, err, "comments")
	}
	out := make([]commentResp, 0, len(items))
	for _, cm := range items {
		out = append(out, toCommentResp(cm))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// AddComment posts a comment as the caller.
func (h *GalleryHandler) AddComment(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req commentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	body := strings.TrimSpace(req.Body)
	if body == "" || utf8.RuneCountInString(body) > maxCommentLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "comment must be 1-1000 characters", "field": "body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Artworks.GetByID(ctx, id)
	if err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	if !visible(a, c) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "artwork not found"})
	}
	cm := model.Comment{ArtworkID: id, UserID: cl.AccountID, Body: body}
	if err := h.Comments.Add(ctx, &cm); err != nil {
		return repoError(c, h.Log, err, "artwork")
	}
	return c.JSON(http.StatusCreated, toCommentResp(cm))
}

// DeleteComment removes a comment; authors may delete their own and
// admins any.
func (h *GalleryHandler) DeleteComment(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Comments.Delete(ctx, id, cl.AccountID, cl.Role == model.RoleAdmin); err != nil {
		return repoError(c, h.Log, err, "comment")
	}
	return c.NoContent(http.StatusNoContent)
}
