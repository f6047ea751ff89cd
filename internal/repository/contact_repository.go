package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/galleryhub/internal/model"
)

// ContactRepo stores messages sent through the contact form.
type ContactRepo struct{ DB *sql.DB }

func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{DB: db} }

// Create inserts m and fills its id and timestamp.
func (r *ContactRepo) Create(ctx context.Context, m *model.ContactMessage) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO contact_messages (name, email, message) VALUES (?, ?, ?)", m.Name, m.Email, m.Message)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return r.DB.QueryRowContext(ctx, "SELECT created_at FROM contact_messages WHERE id = ?", m.ID).Scan(&m.CreatedAt)
}

// List returns one page of messages, newest first, and the total count.
func (r *ContactRepo) List(ctx context.Context, limit, offset uint64) ([]model.ContactMessage, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM contact_messages").Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit == 0 || limit > 100 {
		limit = 20
	}
	q, args, err := psql.Select("id", "name", "email", "message", "created_at").From("contact_messages").
		OrderBy("created_at DESC", "id DESC").Limit(limit).Offset(offset).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.ContactMessage{}
	for rows.Next() {
		var m model.ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Delete removes one message.
func (r *ContactRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM contact_messages WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
