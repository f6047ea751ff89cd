package handler

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/repository"
)

const (
	maxContactNameLen    = 100
	maxContactMessageLen = 2000
)

// ContactHandler takes contact form messages and lets admins read them.
type ContactHandler struct {
	Messages *repository.ContactRepo
	Log      logging.Logger
}

func NewContactHandler(messages *repository.ContactRepo, log logging.Logger) *ContactHandler {
	if messages == nil {
		panic("nil repository passed to NewContactHandler")
	}
	if log == nil {
		log = logging.Nop()
	}
	return &ContactHandler{Messages: messages, Log: log}
}

type contactReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Create stores a message from the public contact form.
func (h *ContactHandler) Create(c echo.Context) error {
	var req contactReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	m := model.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   auth.NormalizeEmail(req.Email),
		Message: strings.TrimSpace(req.Message),
	}
	if m.Name == "" || utf8.RuneCountInString(m.Name) > maxContactNameLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name must be 1-100 characters", "field": "name"})
	}
	if err := auth.ValidateEmail(m.Email); err != nil {
		return authError(c, h.Log, err)
	}
	if m.Message == "" || utf8.RuneCountInString(m.Message) > maxContactMessageLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message must be 1-2000 characters", "field": "message"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := h.Messages.Create(ctx, &m); err != nil {
		return repoError(c, h.Log, err, "message")
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": m.ID, "message": "thank you, we will get back to you soon"})
}

// List pages through received messages, newest first.
func (h *ContactHandler) List(c echo.Context) error {
	limit, offset := page(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	items, total, err := h.Messages.List(ctx, limit, offset)
	if err != nil {
		return repoError(c, h.Log, err, "messages")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": total})
}

// Delete removes one message.
func (h *ContactHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := h.Messages.Delete(ctx, id); err != nil {
		return repoError(c, h.Log, err, "message")
	}
	return c.NoContent(http.StatusNoContent)
}
