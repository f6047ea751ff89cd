package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/handler"
	"github.com/iliyamo/galleryhub/internal/middleware"
)

// RegisterGallery registers the public gallery and the artist endpoints.
// Browsing is open to guests and the listing goes through cache; writes
// need a session and are checked for ownership in the handler.
func RegisterGallery(e *echo.Echo, h *handler.GalleryHandler, cache echo.MiddlewareFunc) {
	session := middleware.RequireSession()

	// ---- Browse ----
	e.GET("/v1/artworks", h.List, cache)
	e.GET("/v1/artworks/:id", h.Get) // counts a view, so never cached
	e.GET("/v1/artworks/:id/comments", h.ListComments)

	// ---- Artist ----
	e.POST("/v1/artworks/uploads", h.PresignUpload, session)
	e.POST("/v1/artworks", h.Create, session)
	e.DELETE("/v1/artworks/:id", h.Delete, session)
	e.GET("/v1/me/artworks", h.Mine, session)

	// ---- Engagement ----
	e.POST("/v1/artworks/:id/like", h.ToggleLike, session)
	e.POST("/v1/artworks/:id/comments", h.AddComment, session)
	e.DELETE("/v1/comments/:id", h.DeleteComment, session)
}
