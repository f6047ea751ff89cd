package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/galleryhub/internal/database"
	"github.com/iliyamo/galleryhub/internal/model"
)

var artworkColumns = []string{
	"a.id", "a.artist_id", "u.name", "a.title", "a.description", "a.object_key", "a.category",
	"a.views", "(SELECT COUNT(*) FROM artwork_likes l WHERE l.artwork_id = a.id)",
	"a.status", "a.is_public", "a.created_at", "a.updated_at",
}

// ArtworkRepo persists artworks and their tags.
type ArtworkRepo struct{ DB *sql.DB }

func NewArtworkRepo(db *sql.DB) *ArtworkRepo { return &ArtworkRepo{DB: db} }

func scanArtwork(row rowScanner) (model.Artwork, error) {
	var (
		a      model.Artwork
		status string
	)
	err := row.Scan(&a.ID, &a.ArtistID, &a.ArtistName, &a.Title, &a.Description, &a.ObjectKey, &a.Category,
		&a.Views, &a.Likes, &status, &a.IsPublic, &a.CreatedAt, &a.UpdatedAt)
	a.Status = model.ArtworkStatus(status)
	return a, err
}

// Create inserts an artwork and its tags. The object key must be unused;
// a reused key returns ErrConflict. When maxPerArtist is positive the
// artist row is locked and an artist already owning that many artworks
// gets ErrLimitReached.
func (r *ArtworkRepo) Create(ctx context.Context, a *model.Artwork, maxPerArtist int) error {
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	return database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		if maxPerArtist > 0 {
			var owner string
			if err := tx.QueryRowContext(ctx,
				"SELECT id FROM users WHERE id = ? FOR UPDATE", a.ArtistID).Scan(&owner); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
			var n int
			if err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM artworks WHERE artist_id = ?", a.ArtistID).Scan(&n); err != nil {
				return err
			}
			if n >= maxPerArtist {
				return ErrLimitReached
			}
		}

		q, args, err := psql.Insert("artworks").
			Columns("artist_id", "title", "description", "object_key", "category", "status", "is_public").
			Values(a.ArtistID, a.Title, a.Description, a.ObjectKey, a.Category, string(a.Status), a.IsPublic).
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			switch {
			case isMySQLError(err, errDupEntry):
				return ErrConflict
			case isMySQLError(err, errNoReferencedRow):
				return ErrNotFound
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		a.ID = uint64(id)

		if len(a.Tags) > 0 {
			ins := psql.Insert("artwork_tags").Columns("artwork_id", "tag")
			for _, t := range a.Tags {
				ins = ins.Values(a.ID, t)
			}
			q, args, err := ins.ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return err
			}
		}

		// populate defaults (timestamps, counters)
		got, err := scanArtwork(tx.QueryRowContext(ctx,
			"SELECT "+strings.Join(artworkColumns, ", ")+" FROM artworks a JOIN users u ON u.id = a.artist_id WHERE a.id = ?", a.ID))
		if err != nil {
			return err
		}
		got.Tags = a.Tags
		*a = got
		return nil
	})
}

// GetByID fetches one artwork with its tags.
func (r *ArtworkRepo) GetByID(ctx context.Context, id uint64) (model.Artwork, error) {
	q, args, err := psql.Select(artworkColumns...).From("artworks a").Join("users u ON u.id = a.artist_id").
		Where(sq.Eq{"a.id": id}).ToSql()
	if err != nil {
		return model.Artwork{}, err
	}
	a, err := scanArtwork(r.DB.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Artwork{}, ErrNotFound
		}
		return model.Artwork{}, err
	}
	tags, err := r.tagsFor(ctx, []uint64{id})
	if err != nil {
		return model.Artwork{}, err
	}
	a.Tags = tags[id]
	return a, nil
}

// ArtworkFilter narrows Search. Zero values mean no constraint.
type ArtworkFilter struct {
	Query      string // substring of title or description
	Category   string
	Tag        string
	ArtistID   string
	Status     model.ArtworkStatus
	PublicOnly bool
	Sort       string // newest (default), popular, views
	Limit      uint64
	Offset     uint64
}

// Search returns one page of artworks and the total number of matches.
func (r *ArtworkRepo) Search(ctx context.Context, f ArtworkFilter) ([]model.Artwork, int, error) {
	where := sq.And{}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(q) + "%"
		where = append(where, sq.Or{sq.Like{"a.title": like}, sq.Like{"a.description": like}})
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"a.category": f.Category})
	}
	if f.Tag != "" {
		where = append(where, sq.Expr("EXISTS (SELECT 1 FROM artwork_tags t WHERE t.artwork_id = a.id AND t.tag = ?)", f.Tag))
	}
	if f.ArtistID != "" {
		where = append(where, sq.Eq{"a.artist_id": f.ArtistID})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"a.status": string(f.Status)})
	}
	if f.PublicOnly {
		where = append(where, sq.Eq{"a.is_public": true})
	}

	countQ, countArgs, err := psql.Select("COUNT(*)").From("artworks a").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "a.created_at DESC"
	switch f.Sort {
	case "popular":
		order = "(SELECT COUNT(*) FROM artwork_likes l WHERE l.artwork_id = a.id) DESC"
	case "views":
		order = "a.views DESC"
	}
	limit := f.Limit
	if limit == 0 || limit > 100 {
		limit = 24
	}
	q, args, err := psql.Select(artworkColumns...).From("artworks a").Join("users u ON u.id = a.artist_id").
		Where(where).OrderBy(order, "a.id DESC").Limit(limit).Offset(f.Offset).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out []model.Artwork
		ids []uint64
	)
	for rows.Next() {
		a, err := scanArtwork(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return out, total, nil
	}

	tags, err := r.tagsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Tags = tags[out[i].ID]
	}
	return out, total, nil
}

func (r *ArtworkRepo) tagsFor(ctx context.Context, ids []uint64) (map[uint64][]string, error) {
	q, args, err := psql.Select("artwork_id", "tag").From("artwork_tags").
		Where(sq.Eq{"artwork_id": ids}).OrderBy("artwork_id", "tag").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint64][]string, len(ids))
	for rows.Next() {
		var (
			id  uint64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

// IncrementViews bumps the view counter of one artwork.
func (r *ArtworkRepo) IncrementViews(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE artworks SET views = views + 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the moderation status of an artwork.
func (r *ArtworkRepo) UpdateStatus(ctx context.Context, id uint64, status model.ArtworkStatus) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE artworks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an artwork and returns its object key so the caller can
// drop the stored image. When artistID is non-empty the artwork must
// belong to that artist, otherwise ErrForbidden is returned.
func (r *ArtworkRepo) Delete(ctx context.Context, id uint64, artistID string) (string, error) {
	var key string
	err := database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		var owner string
		if err := tx.QueryRowContext(ctx,
			"SELECT artist_id, object_key FROM artworks WHERE id = ? FOR UPDATE", id).Scan(&owner, &key); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if artistID != "" && owner != artistID {
			return ErrForbidden
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM artworks WHERE id = ?", id)
		return err
	})
	if err != nil {
		return "", err
	}
	return key, nil
}
