package model

import (
	"strings"
	"time"
)

// ArtworkStatus is the moderation state of an artwork.
type ArtworkStatus string

const (
	StatusPending  ArtworkStatus = "pending"
	StatusApproved ArtworkStatus = "approved"
	StatusRejected ArtworkStatus = "rejected"
)

// Categories lists the artwork categories accepted on upload.
var Categories = []string{"painting", "photography", "digital", "sculpture", "drawing", "abstract", "portrait", "other"}

// IsCategory reports whether c is one of Categories.
func IsCategory(c string) bool {
	c = strings.ToLower(strings.TrimSpace(c))
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Artwork represents an uploaded piece as stored in the `artworks` table.
// The image itself lives in object storage under ObjectKey.
//
// Fields:
//  ID          – primary key identifier.
//  ArtistID    – users.id of the uploader.
//  ArtistName  – uploader display name (joined, read-only).
//  Title       – title, at most 100 characters.
//  Description – description, at most 1000 characters.
//  ObjectKey   – object storage key of the image.
//  Category    – one of Categories.
//  Tags        – free-form tags.
//  Views       – view counter.
//  Likes       – number of artwork_likes rows (derived, read-only).
//  Status      – pending, approved or rejected.
//  IsPublic    – hidden from the public gallery when false.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Artwork struct {
	ID          uint64
	ArtistID    string
	ArtistName  string
	Title       string
	Description string
	ObjectKey   string
	Category    string
	Tags        []string
	Views       uint64
	Likes       uint64
	Status      ArtworkStatus
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Comment is a single remark left on an artwork.
type Comment struct {
	ID         uint64    // artwork_comments.id
	ArtworkID  uint64    // artwork_comments.artwork_id
	UserID     string    // artwork_comments.user_id
	AuthorName string    // users.name (joined, read-only)
	Body       string    // artwork_comments.body
	CreatedAt  time.Time // artwork_comments.created_at
}

// Stats is the admin dashboard overview.
type Stats struct {
	Users           uint64 `json:"users"`
	Admins          uint64 `json:"admins"`
	ActiveUsers     uint64 `json:"active_users"`
	LockedUsers     uint64 `json:"locked_users"`
	Artworks        uint64 `json:"artworks"`
	PendingArtworks uint64 `json:"pending_artworks"`
	TotalViews      uint64 `json:"total_views"`
	TotalLikes      uint64 `json:"total_likes"`
	TotalComments   uint64 `json:"total_comments"`
}
