package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/galleryhub/internal/database"
)

// ResetTokenRepo persists password reset tokens (single 'token_hash' column).
type ResetTokenRepo struct{ DB *sql.DB }

func NewResetTokenRepo(db *sql.DB) *ResetTokenRepo { return &ResetTokenRepo{DB: db} }

// Store inserts a token hash row and retires the user's earlier tokens so
// only the latest emailed link works.
func (r *ResetTokenRepo) Store(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	return database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE password_reset_tokens SET consumed_at = ? WHERE user_id = ? AND consumed_at IS NULL",
			time.Now().UTC(), userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
			userID, tokenHash, exp)
		return err
	})
}

// Redeem spends a live token on a new password. The token row is locked,
// the owner's hash replaced and the token marked used in one transaction,
// so a failed password write leaves the link usable and a token is spent
// at most once under concurrent requests.
func (r *ResetTokenRepo) Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	var userID string
	err := database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		err := tx.QueryRowContext(ctx,
			`SELECT user_id FROM password_reset_tokens
			 WHERE token_hash = ? AND consumed_at IS NULL AND expires_at > ? FOR UPDATE`,
			tokenHash, now).Scan(&userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := setPassword(ctx, tx, userID, passwordHash); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE password_reset_tokens SET consumed_at = ? WHERE token_hash = ?", now, tokenHash)
		return err
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// DeleteExpired removes tokens that expired before cutoff and returns how
// many rows were dropped.
func (r *ResetTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
