package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
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
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message, metadata, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.UserID, n.Type, n.Title, n.Message, meta, n.IsRead, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	n.ID = id
	return nil
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, metadata, is_read, created_at
		FROM notifications
		WHERE user_id = ? AND (? = 0 OR is_read = 0)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
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
			n.Metadata = json.RawMessage(meta.String)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r *NotificationRepo) SetRead(ctx context.Context, id, userID int64, isRead bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?
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
		UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}
