package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/model"
	"github.com/iliyamo/galleryhub/internal/storage"
)

// Bounds of the editable settings.
const (
	maxArtworksPerUserCap = 1000
	maxFileSizeMBCap      = 100
	maxMaintenanceMsgLen  = 500
	maxSettingsBody       = 64 << 10
)

// SettingsSource reads the platform settings.
type SettingsSource interface {
	Get(ctx context.Context) (model.Settings, error)
}

// SettingsStore reads and edits the platform settings.  *cache.Settings
// implements it.
type SettingsStore interface {
	SettingsSource
	Update(ctx context.Context, fn func(model.Settings) (model.Settings, error)) (model.Settings, error)
}

// SettingsHandler serves the admin settings endpoints.
type SettingsHandler struct {
	Settings SettingsStore
	Log      logging.Logger
}

func NewSettingsHandler(settings SettingsStore, log logging.Logger) *SettingsHandler {
	if settings == nil {
		panic("nil settings store passed to NewSettingsHandler")
	}
	if log == nil {
		log = logging.Nop()
	}
	return &SettingsHandler{Settings: settings, Log: log}
}

// settingsPatch holds the fields a PATCH may carry; nil means unchanged.
type settingsPatch struct {
	AllowNewRegistrations  *bool     `json:"allow_new_registrations"`
	AllowArtworkUploads    *bool     `json:"allow_artwork_uploads"`
	RequireArtworkApproval *bool     `json:"require_artwork_approval"`
	MaxArtworksPerUser     *int      `json:"max_artworks_per_user"`
	MaxFileSizeMB          *int      `json:"max_file_size_mb"`
	AllowedFileTypes       *[]string `json:"allowed_file_types"`
	MaintenanceMode        *bool     `json:"maintenance_mode"`
	MaintenanceMessage     *string   `json:"maintenance_message"`
}

var settingsFields = map[string]bool{
	"allow_new_registrations":  true,
	"allow_artwork_uploads":    true,
	"require_artwork_approval": true,
	"max_artworks_per_user":    true,
	"max_file_size_mb":         true,
	"allowed_file_types":       true,
	"maintenance_mode":         true,
	"maintenance_message":      true,
}

// settingsError is a rejected settings value.
type settingsError struct {
	Field string
	Msg   string
}

func (e *settingsError) Error() string { return e.Field + ": " + e.Msg }

// apply validates p against cur and returns the merged settings.
func (p settingsPatch) apply(cur model.Settings) (model.Settings, error) {
	next := cur
	if p.AllowNewRegistrations != nil {
		next.AllowNewRegistrations = *p.AllowNewRegistrations
	}
	if p.AllowArtworkUploads != nil {
		next.AllowArtworkUploads = *p.AllowArtworkUploads
	}
	if p.RequireArtworkApproval != nil {
		next.RequireArtworkApproval = *p.RequireArtworkApproval
	}
	if p.MaintenanceMode != nil {
		next.MaintenanceMode = *p.MaintenanceMode
	}
	if v := p.MaxArtworksPerUser; v != nil {
		if *v < 1 || *v > maxArtworksPerUserCap {
			return cur, &settingsError{"max_artworks_per_user", "must be between 1 and 1000"}
		}
		next.MaxArtworksPerUser = *v
	}
	if v := p.MaxFileSizeMB; v != nil {
		if *v < 1 || *v > maxFileSizeMBCap {
			return cur, &settingsError{"max_file_size_mb", "must be between 1 and 100"}
		}
		next.MaxFileSizeMB = *v
	}
	if v := p.AllowedFileTypes; v != nil {
		types := make([]string, 0, len(*v))
		for _, t := range *v {
			t = strings.ToLower(strings.TrimSpace(t))
			if !storage.Supported(t) {
				return cur, &settingsError{"allowed_file_types", "unsupported type " + t}
			}
			if !slices.Contains(types, t) {
				types = append(types, t)
			}
		}
		if len(types) == 0 {
			return cur, &settingsError{"allowed_file_types", "at least one type is required"}
		}
		next.AllowedFileTypes = types
	}
	if v := p.MaintenanceMessage; v != nil {
		msg := strings.TrimSpace(*v)
		if msg == "" || utf8.RuneCountInString(msg) > maxMaintenanceMsgLen {
			return cur, &settingsError{"maintenance_message", "must be 1-500 characters"}
		}
		next.MaintenanceMessage = msg
	}
	return next, nil
}

// Get returns the current settings.
func (h *SettingsHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	st, err := h.Settings.Get(ctx)
	if err != nil {
		return settingsUnavailable(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Update changes the fields present in the body.  Any unknown field fails
// the whole request with 400.
func (h *SettingsHandler) Update(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSettingsBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	var unknown, names []string
	for k := range fields {
		if !settingsFields[k] {
			unknown = append(unknown, k)
		}
		names = append(names, k)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid fields: " + strings.Join(unknown, ", ")})
	}
	if len(fields) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no valid update fields provided"})
	}
	var p settingsPatch
	if err := json.Unmarshal(raw, &p); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": te.Field + " has the wrong type", "field": te.Field})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	st, err := h.Settings.Update(ctx, p.apply)
	if err != nil {
		var serr *settingsError
		if errors.As(err, &serr) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": serr.Error(), "field": serr.Field})
		}
		return settingsUnavailable(c, h.Log, err)
	}
	sort.Strings(names)
	by := ""
	if cl, ok := caller(c); ok {
		by = cl.AccountID
	}
	h.Log.Info(ctx, "settings updated", "by", by, "fields", names)
	return c.JSON(http.StatusOK, st)
}

func settingsUnavailable(c echo.Context, log logging.Logger, err error) error {
	logFailure(c, log, "settings", err)
	c.Response().Header().Set("Retry-After", retryAfterSeconds)
	return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable, please retry"})
}

func uploadsDisabled(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": "artwork uploads are currently disabled"})
}

// purgeGallery drops cached public gallery pages.  A failure only keeps
// stale pages until they expire, so it is logged and not reported.
func purgeGallery(c echo.Context, log logging.Logger, purge func(context.Context) error) {
	if purge == nil {
		return
	}
	if err := purge(c.Request().Context()); err != nil {
		log.Warn(c.Request().Context(), "purge gallery cache", "err", err)
	}
}
