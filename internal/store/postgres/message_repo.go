package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"leaddesk/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Create stores the message and records both chat parties as members.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	a, b, err := domain.ChatMembers(m.ChatID)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.ChatID, m.SenderID, m.Content, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2), ($1, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, m.ChatID, a, b); err != nil {
		return fmt.Errorf("insert chat members: %w", err)
	}
	return tx.Commit()
}

func (r *MessageRepo) ListForChat(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) DeleteChat(ctx context.Context, chatID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID)
	if err != nil {
		return 0, fmt.Errorf("clear chat: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepo) PruneOld(ctx context.Context, chatID string, keepLimit int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE chat_id = $1
		  AND id NOT IN (
			  SELECT id FROM messages
			  WHERE chat_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2
		  )
	`, chatID, keepLimit)
	if err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}
	return nil
}

func (r *MessageRepo) Contacts(ctx context.Context, userID int64) ([]*domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cm.chat_id, u.id, u.username, last.content, last.created_at
		FROM chat_members cm
		JOIN chat_members peer ON peer.chat_id = cm.chat_id AND peer.user_id <> cm.user_id
		JOIN users u ON u.id = peer.user_id
		LEFT JOIN LATERAL (
			SELECT m.content, m.created_at
			FROM messages m
			WHERE m.chat_id = cm.chat_id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) last ON TRUE
		WHERE cm.user_id = $1
		ORDER BY last.created_at DESC NULLS LAST
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var res []*domain.Contact
	for rows.Next() {
		c := &domain.Contact{}
		var last sql.NullString
		var lastAt sql.NullTime
		if err := rows.Scan(&c.ChatID, &c.UserID, &c.Username, &last, &lastAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.LastMessage = last.String
		if lastAt.Valid {
			t := lastAt.Time
			c.LastMessageAt = &t
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

