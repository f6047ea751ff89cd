package model

import (
	"slices"
	"time"
)

// Settings are the platform switches admins change at runtime. They live
// in the single `settings` row.
type Settings struct {
	AllowNewRegistrations  bool      `json:"allow_new_registrations"`
	AllowArtworkUploads    bool      `json:"allow_artwork_uploads"`
	RequireArtworkApproval bool      `json:"require_artwork_approval"`
	MaxArtworksPerUser     int       `json:"max_artworks_per_user"`
	MaxFileSizeMB          int       `json:"max_file_size_mb"`
	AllowedFileTypes       []string  `json:"allowed_file_types"`
	MaintenanceMode        bool      `json:"maintenance_mode"`
	MaintenanceMessage     string    `json:"maintenance_message"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// DefaultSettings matches the column defaults of the settings table and
// applies while the row is missing.
func DefaultSettings() Settings {
	return Settings{
		AllowNewRegistrations:  true,
		AllowArtworkUploads:    true,
		RequireArtworkApproval: true,
		MaxArtworksPerUser:     50,
		MaxFileSizeMB:          10,
		AllowedFileTypes:       []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		MaintenanceMessage:     "The platform is currently under maintenance. Please check back later.",
	}
}

// MaxFileBytes is MaxFileSizeMB in bytes.
func (s Settings) MaxFileBytes() int64 { return int64(s.MaxFileSizeMB) << 20 }

// AllowsType reports whether uploads of contentType are enabled.
func (s Settings) AllowsType(contentType string) bool {
	return slices.Contains(s.AllowedFileTypes, contentType)
}

// ContactMessage is a note sent through the public contact form.
type ContactMessage struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
