package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/handler"
	"github.com/iliyamo/galleryhub/internal/middleware"
	"github.com/iliyamo/galleryhub/internal/model"
)

// RegisterAdmin registers admin-scoped endpoints under /v1/admin.  API
// callers get JSON 401/403; the /admin page redirects browsers to the
// login page, or home when the account is not an admin.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, settings *handler.SettingsHandler, contact *handler.ContactHandler) {
	g := e.Group("/v1/admin", middleware.RequireRole(model.RoleAdmin))

	// ---- Accounts ----
	g.GET("/accounts", h.ListAccounts)
	g.PATCH("/accounts/:id", h.UpdateAccount)
	g.POST("/accounts/:id/unlock", h.UnlockAccount)
	g.DELETE("/accounts/:id", h.DeleteAccount)

	// ---- Artworks ----
	g.GET("/artworks", h.ListArtworks)
	g.PATCH("/artworks/:id", h.ModerateArtwork)
	g.DELETE("/artworks/:id", h.DeleteArtwork)

	// ---- Platform ----
	g.GET("/settings", settings.Get)
	g.PATCH("/settings", settings.Update)
	g.GET("/messages", contact.List)
	g.DELETE("/messages/:id", contact.Delete)

	g.GET("/stats", h.Overview)

	e.GET("/admin", h.Overview, middleware.RequireRolePage(model.RoleAdmin, "/login", "/"))
}
