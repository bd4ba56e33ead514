package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

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
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.ChatID, m.SenderID, m.Content, m.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	for _, uid := range []int64{a, b} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)
			ON CONFLICT (chat_id, user_id) DO NOTHING
		`, m.ChatID, uid); err != nil {
			return fmt.Errorf("insert chat member: %w", err)
		}
	}
	return tx.Commit()
}

func (r *MessageRepo) ListForChat(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, content, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC
		LIMIT ?
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("clear chat: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepo) PruneOld(ctx context.Context, chatID string, keepLimit int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE chat_id = ?
		  AND id NOT IN (
			  SELECT id FROM messages
			  WHERE chat_id = ?
			  ORDER BY created_at DESC
			  LIMIT ?
		  )
	`, chatID, chatID, keepLimit)
	if err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}
	return nil
}

func (r *MessageRepo) Contacts(ctx context.Context, userID int64) ([]*domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cm.chat_id, u.id, u.username, m.content, m.created_at
		FROM chat_members cm
		JOIN chat_members peer ON peer.chat_id = cm.chat_id AND peer.user_id != cm.user_id
		JOIN users u ON u.id = peer.user_id
		LEFT JOIN messages m ON m.id = (
			SELECT x.id FROM messages x
			WHERE x.chat_id = cm.chat_id
			ORDER BY x.created_at DESC, x.id DESC
			LIMIT 1
		)
		WHERE cm.user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var res []*domain.Contact
	for rows.Next() {
		c := &domain.Contact{}
		var last *string
		var lastAt *time.Time
		if err := rows.Scan(&c.ChatID, &c.UserID, &c.Username, &last, &lastAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if last != nil {
			c.LastMessage = *last
		}
		c.LastMessageAt = lastAt
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortContacts(res)
	return res, nil
}

// sortContacts orders by most recent message; chats without messages go last.
func sortContacts(cs []*domain.Contact) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i].LastMessageAt, cs[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}
