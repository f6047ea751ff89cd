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

// loginStateRetries bounds the compare-and-set loop of UpdateLoginState.
const loginStateRetries = 16

var accountColumns = []string{
	"id", "name", "email", "password_hash", "provider", "role", "is_active", "email_verified",
	"failed_login_attempts", "last_failed_login", "is_locked", "lock_expires_at",
	"last_login_at", "created_at", "updated_at",
}

// AccountRepo persists accounts in the `users` table.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a                           model.Account
		role                        string
		lastFailed, lockExp, lastIn sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Provider, &role, &a.IsActive, &a.EmailVerified,
		&a.Login.FailedAttempts, &lastFailed, &a.Login.Locked, &lockExp,
		&lastIn, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Account{}, err
	}
	a.Role = model.Role(role)
	a.Login.LastFailedAt = timePtr(lastFailed)
	a.Login.LockExpiresAt = timePtr(lockExp)
	a.LastLoginAt = timePtr(lastIn)
	return a, nil
}

func (r *AccountRepo) getBy(ctx context.Context, col string, v any) (model.Account, error) {
	q, args, err := psql.Select(accountColumns...).From("users").Where(sq.Eq{col: v}).Limit(1).ToSql()
	if err != nil {
		return model.Account{}, err
	}
	a, err := scanAccount(r.DB.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	return r.getBy(ctx, "id", id)
}

// Create inserts a. The caller assigns the id.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	q, args, err := psql.Insert("users").
		Columns("id", "name", "email", "password_hash", "provider", "role", "is_active", "email_verified", "created_at", "updated_at").
		Values(a.ID, a.Name, a.Email, a.PasswordHash, a.Provider, string(a.Role), a.IsActive, a.EmailVerified, a.CreatedAt, a.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, q, args...); err != nil {
		if isMySQLError(err, errDupEntry) {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

// UpdateLoginState applies fn to the login columns of one account as a
// compare-and-set on login_version. A lost race re-reads and re-applies
// fn; after loginStateRetries lost races ErrConflict is returned.
func (r *AccountRepo) UpdateLoginState(ctx context.Context, id string, fn func(model.LoginState) (model.LoginState, error)) (model.LoginState, error) {
	const qSelect = `SELECT failed_login_attempts, last_failed_login, is_locked, lock_expires_at, login_version
	                 FROM users WHERE id = ?`
	const qUpdate = `UPDATE users
	                 SET failed_login_attempts = ?, last_failed_login = ?, is_locked = ?, lock_expires_at = ?,
	                     login_version = login_version + 1
	                 WHERE id = ? AND login_version = ?`

	for i := 0; i < loginStateRetries; i++ {
		var (
			cur              model.LoginState
			lastFailed, lock sql.NullTime
			version          uint64
		)
		err := r.DB.QueryRowContext(ctx, qSelect, id).Scan(&cur.FailedAttempts, &lastFailed, &cur.Locked, &lock, &version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.LoginState{}, ErrNotFound
			}
			return model.LoginState{}, err
		}
		cur.LastFailedAt = timePtr(lastFailed)
		cur.LockExpiresAt = timePtr(lock)

		next, err := fn(cur)
		if err != nil {
			return cur, err
		}

		res, err := r.DB.ExecContext(ctx, qUpdate,
			next.FailedAttempts, nullTime(next.LastFailedAt), next.Locked, nullTime(next.LockExpiresAt), id, version)
		if err != nil {
			return model.LoginState{}, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return next, nil
		}
	}
	return model.LoginState{}, ErrConflict
}

// SetLastLogin stamps the time of the latest successful sign-in.
func (r *AccountRepo) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at = ? WHERE id = ?", at, id)
	return err
}

// setPassword replaces the password hash and clears the counter and lock.
func setPassword(ctx context.Context, db database.DBTX, id, hash string) error {
	const q = `UPDATE users
	           SET password_hash = ?, failed_login_attempts = 0, last_failed_login = NULL,
	               is_locked = 0, lock_expires_at = NULL, login_version = login_version + 1
	           WHERE id = ?`
	res, err := db.ExecContext(ctx, q, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepo) MarkEmailVerified(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET email_verified = 1 WHERE id = ?", id)
	return err
}

// CountByRole counts accounts holding role, active or not.
func (r *AccountRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role = ?", string(role)).Scan(&n)
	return n, err
}

// AccountFilter narrows List. Zero values mean no constraint.
type AccountFilter struct {
	Query  string // substring of name or email
	Role   model.Role
	Active *bool
	Limit  uint64
	Offset uint64
}

// List returns one page of accounts, newest first, and the total match count.
func (r *AccountRepo) List(ctx context.Context, f AccountFilter) ([]model.Account, int, error) {
	where := sq.And{}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(q) + "%"
		where = append(where, sq.Or{sq.Like{"name": like}, sq.Like{"email": like}})
	}
	if f.Role != "" {
		where = append(where, sq.Eq{"role": string(f.Role)})
	}
	if f.Active != nil {
		where = append(where, sq.Eq{"is_active": *f.Active})
	}

	countQ, countArgs, err := psql.Select("COUNT(*)").From("users").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit == 0 || limit > 100 {
		limit = 20
	}
	q, args, err := psql.Select(accountColumns...).From("users").Where(where).
		OrderBy("created_at DESC", "id").Limit(limit).Offset(f.Offset).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AccountUpdate names the admin-editable fields of an account. Nil fields
// are left alone.
type AccountUpdate struct {
	Role   *model.Role
	Active *bool
}

// Update applies u to one account in a single transaction. A change that
// would leave no active admin returns ErrLastAdmin and writes nothing.
func (r *AccountRepo) Update(ctx context.Context, id string, u AccountUpdate) error {
	set := sq.Eq{}
	if u.Role != nil {
		set["role"] = string(*u.Role)
	}
	if u.Active != nil {
		set["is_active"] = *u.Active
	}
	if len(set) == 0 {
		return nil
	}
	staysAdmin := func(role model.Role, active bool) bool {
		if u.Role != nil {
			role = *u.Role
		}
		if u.Active != nil {
			active = *u.Active
		}
		return role == model.RoleAdmin && active
	}
	return r.guarded(ctx, id, staysAdmin, func(ctx context.Context, tx database.DBTX) error {
		q, args, err := psql.Update("users").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, q, args...)
		return err
	})
}

// Delete removes an account together with its artworks, likes and
// comments. Deleting the last active admin returns ErrLastAdmin.
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	gone := func(model.Role, bool) bool { return false }
	return r.guarded(ctx, id, gone, func(ctx context.Context, tx database.DBTX) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
		return err
	})
}

// guarded runs apply in a transaction that first locks every active admin
// row and then the target row. staysAdmin reports whether the target is
// still an active admin afterwards, given its current role and flag. When
// an active admin would stop being one and no other active admin exists,
// apply is skipped and ErrLastAdmin returned.
func (r *AccountRepo) guarded(ctx context.Context, id string, staysAdmin func(model.Role, bool) bool, apply func(context.Context, database.DBTX) error) error {
	return database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		var admins int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM users WHERE role = 'admin' AND is_active = 1 FOR UPDATE").Scan(&admins); err != nil {
			return err
		}
		var (
			role   string
			active bool
		)
		if err := tx.QueryRowContext(ctx,
			"SELECT role, is_active FROM users WHERE id = ? FOR UPDATE", id).Scan(&role, &active); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		cur := model.Role(role)
		if cur == model.RoleAdmin && active && !staysAdmin(cur, active) && admins <= 1 {
			return ErrLastAdmin
		}
		return apply(ctx, tx)
	})
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
