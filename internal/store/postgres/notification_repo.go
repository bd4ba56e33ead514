package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"leaddesk/internal/domain"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	var meta any
	if len(n.Metadata) > 0 {
		meta = string(n.Metadata)
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message, metadata, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		RETURNING id
	`, n.UserID, n.Type, n.Title, n.Message, meta, n.IsRead, n.CreatedAt).Scan(&n.ID)
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, metadata::text, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var res []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		var meta sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &meta, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if meta.Valid {
			n.Metadata = []byte(meta.String)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r *NotificationRepo) SetRead(ctx context.Context, id, userID int64, isRead bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = $1 WHERE id = $2 AND user_id = $3
	`, isRead, id, userID)
	if err != nil {
		return fmt.Errorf("set notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}
