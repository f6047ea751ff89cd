package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/galleryhub/internal/model"
)

var artworkCols = []string{
	"id", "artist_id", "name", "title", "description", "object_key", "category",
	"views", "likes", "status", "is_public", "created_at", "updated_at",
}

func TestArtworkRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArtworkRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO artworks \(artist_id,title,description,object_key,category,status,is_public\) VALUES`).
		WithArgs("u-1", "Dawn", "first light", "artworks/u-1/k.jpg", "painting", "pending", true).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(`INSERT INTO artwork_tags \(artwork_id,tag\) VALUES \(\?,\?\),\(\?,\?\)`).
		WithArgs(9, "oil", 9, "sunrise").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT a.id, .+ FROM artworks a JOIN users u ON u.id = a.artist_id WHERE a.id = \?`).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(artworkCols).AddRow(
			9, "u-1", "Ada", "Dawn", "first light", "artworks/u-1/k.jpg", "painting", 0, 0, "pending", true, now, now))
	mock.ExpectCommit()

	a := &model.Artwork{
		ArtistID: "u-1", Title: "Dawn", Description: "first light", ObjectKey: "artworks/u-1/k.jpg",
		Category: "painting", Tags: []string{"oil", "sunrise"}, IsPublic: true,
	}
	require.NoError(t, repo.Create(context.Background(), a, 0))
	assert.Equal(t, uint64(9), a.ID)
	assert.Equal(t, "Ada", a.ArtistName)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, []string{"oil", "sunrise"}, a.Tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtworkRepo_CreateReusedKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArtworkRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO artworks`).WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Artwork{ArtistID: "u-1", ObjectKey: "k"}, 0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestArtworkRepo_CreateHonoursArtistLimit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArtworkRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \? FOR UPDATE`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM artworks WHERE artist_id = \?`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Artwork{ArtistID: "u-1", ObjectKey: "k"}, 3)
	assert.ErrorIs(t, err, ErrLimitReached)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \? FOR UPDATE`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	err = repo.Create(context.Background(), &model.Artwork{ArtistID: "ghost", ObjectKey: "k"}, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepo_GetFallsBackToDefaults(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettingsRepo(db)

	mock.ExpectQuery(`SELECT allow_new_registrations, .+ FROM settings WHERE id = \?`).WithArgs(1).
		WillReturnError(sql.ErrNoRows)
	s, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), s)
	require.NoError(t, mock.ExpectationsWereMet())
}

var settingsCols = []string{
	"allow_new_registrations", "allow_artwork_uploads", "require_artwork_approval",
	"max_artworks_per_user", "max_file_size_mb", "allowed_file_types",
	"maintenance_mode", "maintenance_message", "updated_at",
}

func TestSettingsRepo_UpdateUpserts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettingsRepo(db)
	then := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT allow_new_registrations, .+ FROM settings WHERE id = \? FOR UPDATE`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(settingsCols).AddRow(true, true, true, 50, 10, "image/png, image/jpeg", false, "down", then))
	mock.ExpectExec(`INSERT INTO settings \(id,allow_new_registrations,.+\) VALUES \(.+\) ON DUPLICATE KEY UPDATE allow_new_registrations = VALUES\(allow_new_registrations\), .+ updated_at = VALUES\(updated_at\)`).
		WithArgs(1, false, true, true, 50, 10, "image/png,image/jpeg", false, "down", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	out, err := repo.Update(context.Background(), func(cur model.Settings) (model.Settings, error) {
		assert.Equal(t, []string{"image/png", "image/jpeg"}, cur.AllowedFileTypes)
		cur.AllowNewRegistrations = false
		return cur, nil
	})
	require.NoError(t, err)
	assert.False(t, out.AllowNewRegistrations)
	assert.True(t, out.UpdatedAt.After(then))

	// an error from fn writes nothing
	boom := errors.New("invalid")
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM settings WHERE id = \? FOR UPDATE`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(settingsCols).AddRow(true, true, true, 50, 10, "image/png", false, "down", then))
	mock.ExpectRollback()
	_, err = repo.Update(context.Background(), func(model.Settings) (model.Settings, error) { return model.Settings{}, boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewContactRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO contact_messages \(name, email, message\)`).WithArgs("Ada", "ada@example.com", "hello").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectQuery(`SELECT created_at FROM contact_messages WHERE id = \?`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	m := model.ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "hello"}
	require.NoError(t, repo.Create(context.Background(), &m))
	assert.Equal(t, uint64(4), m.ID)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contact_messages`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(`SELECT id, name, email, message, created_at FROM contact_messages ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "message", "created_at"}).AddRow(4, "Ada", "ada@example.com", "hello", now))
	items, total, err := repo.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "hello", items[0].Message)

	mock.ExpectExec(`DELETE FROM contact_messages WHERE id = \?`).WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), 4))
	mock.ExpectExec(`DELETE FROM contact_messages WHERE id = \?`).WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), 4), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtworkRepo_SearchPublic(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArtworkRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM artworks a WHERE \(a.category = \? AND EXISTS \(SELECT 1 FROM artwork_tags t WHERE t.artwork_id = a.id AND t.tag = \?\) AND a.status = \? AND a.is_public = \?\)`).
		WithArgs("digital", "neon", "approved", true).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectQuery(`SELECT a.id, .+ ORDER BY \(SELECT COUNT\(\*\) FROM artwork_likes l WHERE l.artwork_id = a.id\) DESC, a.id DESC LIMIT 24 OFFSET 0`).
		WithArgs("digital", "neon", "approved", true).
		WillReturnRows(sqlmock.NewRows(artworkCols).
			AddRow(3, "u-1", "Ada", "Grid", "", "k3", "digital", 10, 4, "approved", true, now, now).
			AddRow(2, "u-2", "Bo", "Glow", "", "k2", "digital", 2, 1, "approved", true, now, now))
	mock.ExpectQuery(`SELECT artwork_id, tag FROM artwork_tags WHERE artwork_id IN \(\?,\?\) ORDER BY artwork_id, tag`).
		WithArgs(3, 2).
		WillReturnRows(sqlmock.NewRows([]string{"artwork_id", "tag"}).
			AddRow(2, "neon").AddRow(3, "grid").AddRow(3, "neon"))

	out, total, err := repo.Search(context.Background(), ArtworkFilter{
		Category: "digital", Tag: "neon", Status: model.StatusApproved, PublicOnly: true, Sort: "popular",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(4), out[0].Likes)
	assert.Equal(t, []string{"grid", "neon"}, out[0].Tags)
	assert.Equal(t, []string{"neon"}, out[1].Tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtworkRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArtworkRepo(db)

	mock.ExpectQuery(`SELECT a.id, .+ WHERE a.id = \?`).WithArgs(42).WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArtworkRepo_DeleteOwnership(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArtworkRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT artist_id, object_key FROM artworks WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"artist_id", "object_key"}).AddRow("u-1", "k5"))
	mock.ExpectRollback()
	_, err := repo.Delete(context.Background(), 5, "u-2")
	assert.ErrorIs(t, err, ErrForbidden)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT artist_id, object_key FROM artworks WHERE id = \? FOR UPDATE`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"artist_id", "object_key"}).AddRow("u-1", "k5"))
	mock.ExpectExec(`DELETE FROM artworks WHERE id = \?`).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	key, err := repo.Delete(context.Background(), 5, "")
	require.NoError(t, err)
	assert.Equal(t, "k5", key)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtworkRepo_UpdateStatusAndViews(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArtworkRepo(db)

	mock.ExpectExec(`UPDATE artworks SET status = \?`).WithArgs("approved", 5).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), 5, model.StatusApproved))

	mock.ExpectExec(`UPDATE artworks SET views = views \+ 1 WHERE id = \?`).WithArgs(6).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.IncrementViews(context.Background(), 6), ErrNotFound)
}

func TestLikeRepo_Toggle(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLikeRepo(db)

	// not liked yet: insert
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM artwork_likes WHERE artwork_id = \? AND user_id = \?`).WithArgs(1, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO artwork_likes`).WithArgs(1, "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM artwork_likes WHERE artwork_id = \?`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
	mock.ExpectCommit()
	liked, n, err := repo.Toggle(context.Background(), 1, "u-1")
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, uint64(3), n)

	// liked: delete
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM artwork_likes`).WithArgs(1, "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM artwork_likes`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectCommit()
	liked, n, err = repo.Toggle(context.Background(), 1, "u-1")
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, uint64(2), n)

	// missing artwork
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM artwork_likes`).WithArgs(99, "u-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO artwork_likes`).WithArgs(99, "u-1").WillReturnError(&mysql.MySQLError{Number: 1452})
	mock.ExpectRollback()
	_, _, err = repo.Toggle(context.Background(), 99, "u-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepo_DeleteOwnership(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCommentRepo(db)

	mock.ExpectQuery(`SELECT user_id FROM artwork_comments WHERE id = \?`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), 7, "u-2", false), ErrForbidden)

	mock.ExpectQuery(`SELECT user_id FROM artwork_comments WHERE id = \?`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1"))
	mock.ExpectExec(`DELETE FROM artwork_comments WHERE id = \?`).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), 7, "u-2", true))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepo_Add(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCommentRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO artwork_comments`).WithArgs(1, "u-1", "lovely").WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectQuery(`SELECT u.name, c.created_at FROM artwork_comments c`).WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"name", "created_at"}).AddRow("Ada", now))

	c := &model.Comment{ArtworkID: 1, UserID: "u-1", Body: "lovely"}
	require.NoError(t, repo.Add(context.Background(), c))
	assert.Equal(t, uint64(12), c.ID)
	assert.Equal(t, "Ada", c.AuthorName)
}

func TestResetTokenRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens SET consumed_at = \? WHERE user_id = \? AND consumed_at IS NULL`).
		WithArgs(sqlmock.AnyArg(), "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO password_reset_tokens \(user_id, token_hash, expires_at\)`).
		WithArgs("u-1", "hash", now.Add(time.Hour)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Store(context.Background(), "u-1", "hash", now.Add(time.Hour)))

	require.NoError(t, mock.ExpectationsWereMet())
}

const (
	qLockToken   = `SELECT user_id FROM password_reset_tokens\s+WHERE token_hash = \? AND consumed_at IS NULL AND expires_at > \? FOR UPDATE`
	qSetPassword = `UPDATE users\s+SET password_hash = \?`
	qSpendToken  = `UPDATE password_reset_tokens SET consumed_at = \? WHERE token_hash = \?`
)

func TestResetTokenRepo_Redeem(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(qLockToken).WithArgs("hash", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1"))
	mock.ExpectExec(qSetPassword).WithArgs("new-hash", "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qSpendToken).WithArgs(now, "hash").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	uid, err := repo.Redeem(context.Background(), "hash", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, "u-1", uid)

	// spent, expired or unknown
	mock.ExpectBegin()
	mock.ExpectQuery(qLockToken).WithArgs("hash", now).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	_, err = repo.Redeem(context.Background(), "hash", "new-hash", now)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

// A failed password write rolls back, so the token is never marked used.
func TestResetTokenRepo_RedeemKeepsTokenOnWriteFailure(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(qLockToken).WithArgs("hash", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1"))
	mock.ExpectExec(qSetPassword).WithArgs("new-hash", "u-1").WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	_, err := repo.Redeem(context.Background(), "hash", "new-hash", now)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRepo_Overview(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStatsRepo(db)
	now := time.Now().UTC()
	since := now.Add(-30 * 24 * time.Hour)

	mock.ExpectQuery(`SELECT\s+\(SELECT COUNT\(\*\) FROM users\),`).WithArgs(since, now).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}).
			AddRow(10, 2, 7, 1, 30, 4, 900, 55, 12))

	s, err := repo.Overview(context.Background(), now, since)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{
		Users: 10, Admins: 2, ActiveUsers: 7, LockedUsers: 1, Artworks: 30,
		PendingArtworks: 4, TotalViews: 900, TotalLikes: 55, TotalComments: 12,
	}, s)
}
