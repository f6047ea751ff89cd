package repository

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/galleryhub/internal/database"
	"github.com/iliyamo/galleryhub/internal/model"
)

// LikeRepo stores likes as one artwork_likes row per (artwork, user).
// The like count of an artwork is always the number of its rows.
type LikeRepo struct{ DB *sql.DB }

func NewLikeRepo(db *sql.DB) *LikeRepo { return &LikeRepo{DB: db} }

// Toggle flips the user's like on an artwork and returns the new state and
// count. A missing artwork returns ErrNotFound.
func (r *LikeRepo) Toggle(ctx context.Context, artworkID uint64, userID string) (liked bool, count uint64, err error) {
	err = database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM artwork_likes WHERE artwork_id = ? AND user_id = ?", artworkID, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err := tx.ExecContext(ctx, "INSERT INTO artwork_likes (artwork_id, user_id) VALUES (?, ?)", artworkID, userID)
			switch {
			case isMySQLError(err, errNoReferencedRow):
				return ErrNotFound
			case err != nil && !isMySQLError(err, errDupEntry):
				return err
			}
			liked = true
		}
		return tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM artwork_likes WHERE artwork_id = ?", artworkID).Scan(&count)
	})
	return liked, count, err
}

// Liked reports which of ids the user has liked.
func (r *LikeRepo) Liked(ctx context.Context, userID string, ids []uint64) (map[uint64]bool, error) {
	out := make(map[uint64]bool, len(ids))
	if len(ids) == 0 || userID == "" {
		return out, nil
	}
	q, args, err := psql.Select("artwork_id").From("artwork_likes").
		Where(sq.Eq{"user_id": userID, "artwork_id": ids}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// CommentRepo persists artwork comments.
type CommentRepo struct{ DB *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{DB: db} }

// Add inserts c and fills its id, author name and timestamp.
func (r *CommentRepo) Add(ctx context.Context, c *model.Comment) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO artwork_comments (artwork_id, user_id, body) VALUES (?, ?, ?)", c.ArtworkID, c.UserID, c.Body)
	if err != nil {
		if isMySQLError(err, errNoReferencedRow) {
			return ErrNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return r.DB.QueryRowContext(ctx,
		`SELECT u.name, c.created_at FROM artwork_comments c JOIN users u ON u.id = c.user_id WHERE c.id = ?`,
		c.ID).Scan(&c.AuthorName, &c.CreatedAt)
}

// ListByArtwork returns comments of an artwork, oldest first.
func (r *CommentRepo) ListByArtwork(ctx context.Context, artworkID uint64, limit, offset uint64) ([]model.Comment, error) {
	if limit == 0 || limit > 100 {
		limit = 50
	}
	q, args, err := psql.Select("c.id", "c.artwork_id", "c.user_id", "u.name", "c.body", "c.created_at").
		From("artwork_comments c").Join("users u ON u.id = c.user_id").
		Where(sq.Eq{"c.artwork_id": artworkID}).
		OrderBy("c.created_at", "c.id").Limit(limit).Offset(offset).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.ArtworkID, &c.UserID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a comment. Unless asAdmin, only its author may do so.
func (r *CommentRepo) Delete(ctx context.Context, id uint64, userID string, asAdmin bool) error {
	var author string
	err := r.DB.QueryRowContext(ctx, "SELECT user_id FROM artwork_comments WHERE id = ?", id).Scan(&author)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !asAdmin && author != userID {
		return ErrForbidden
	}
	_, err = r.DB.ExecContext(ctx, "DELETE FROM artwork_comments WHERE id = ?", id)
	return err
}
