package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/galleryhub/internal/database"
	"github.com/iliyamo/galleryhub/internal/model"
)

// settingsID is the primary key of the only settings row.
const settingsID = 1

var settingsColumns = []string{
	"allow_new_registrations", "allow_artwork_uploads", "require_artwork_approval",
	"max_artworks_per_user", "max_file_size_mb", "allowed_file_types",
	"maintenance_mode", "maintenance_message", "updated_at",
}

// SettingsRepo reads and writes the platform settings row.
type SettingsRepo struct{ DB *sql.DB }

func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{DB: db} }

// Get returns the stored settings, or the defaults when the row is missing.
func (r *SettingsRepo) Get(ctx context.Context) (model.Settings, error) {
	return loadSettings(ctx, r.DB, false)
}

// Update applies fn to the current settings under a row lock and upserts
// the result. An error from fn aborts the write and is returned unchanged.
func (r *SettingsRepo) Update(ctx context.Context, fn func(model.Settings) (model.Settings, error)) (model.Settings, error) {
	var out model.Settings
	err := database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		cur, err := loadSettings(ctx, tx, true)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC().Truncate(time.Second)

		set := make([]string, 0, len(settingsColumns))
		for _, c := range settingsColumns {
			set = append(set, c+" = VALUES("+c+")")
		}
		q, args, err := psql.Insert("settings").
			Columns(append([]string{"id"}, settingsColumns...)...).
			Values(settingsID, next.AllowNewRegistrations, next.AllowArtworkUploads, next.RequireArtworkApproval,
				next.MaxArtworksPerUser, next.MaxFileSizeMB, strings.Join(next.AllowedFileTypes, ","),
				next.MaintenanceMode, next.MaintenanceMessage, next.UpdatedAt).
			Suffix("ON DUPLICATE KEY UPDATE " + strings.Join(set, ", ")).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func loadSettings(ctx context.Context, db database.DBTX, lock bool) (model.Settings, error) {
	b := psql.Select(settingsColumns...).From("settings").Where(sq.Eq{"id": settingsID})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	q, args, err := b.ToSql()
	if err != nil {
		return model.Settings{}, err
	}
	var (
		s     model.Settings
		types string
	)
	err = db.QueryRowContext(ctx, q, args...).Scan(
		&s.AllowNewRegistrations, &s.AllowArtworkUploads, &s.RequireArtworkApproval,
		&s.MaxArtworksPerUser, &s.MaxFileSizeMB, &types,
		&s.MaintenanceMode, &s.MaintenanceMessage, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	s.AllowedFileTypes = splitList(types)
	return s, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
