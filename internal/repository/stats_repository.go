package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/galleryhub/internal/model"
)

// StatsRepo aggregates dashboard counters.
type StatsRepo struct{ DB *sql.DB }

func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{DB: db} }

// Overview returns site totals as of now; ActiveUsers counts sign-ins
// since activeSince.
func (r *StatsRepo) Overview(ctx context.Context, now, activeSince time.Time) (model.Stats, error) {
	const q = `SELECT
	    (SELECT COUNT(*) FROM users),
	    (SELECT COUNT(*) FROM users WHERE role = 'admin'),
	    (SELECT COUNT(*) FROM users WHERE last_login_at >= ?),
	    (SELECT COUNT(*) FROM users WHERE is_locked = 1 AND lock_expires_at > ?),
	    (SELECT COUNT(*) FROM artworks),
	    (SELECT COUNT(*) FROM artworks WHERE status = 'pending'),
	    (SELECT COALESCE(SUM(views), 0) FROM artworks),
	    (SELECT COUNT(*) FROM artwork_likes),
	    (SELECT COUNT(*) FROM artwork_comments)`
	var s model.Stats
	err := r.DB.QueryRowContext(ctx, q, activeSince, now).Scan(
		&s.Users, &s.Admins, &s.ActiveUsers, &s.LockedUsers,
		&s.Artworks, &s.PendingArtworks, &s.TotalViews, &s.TotalLikes, &s.TotalComments)
	return s, err
}
