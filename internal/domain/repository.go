package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// LeadRepository defines persistence operations for tour leads.
type LeadRepository interface {
	Create(ctx context.Context, l *Lead) error
	GetByID(ctx context.Context, id int64) (*Lead, error)
	// ListForAgent returns leads held by agentID plus the open pool the agent
	// has not rejected.
	ListForAgent(ctx context.Context, agentID int64, now time.Time) ([]*Lead, error)
	ListForBuyer(ctx context.Context, buyerID int64) ([]*Lead, error)
	// Claim assigns the lead to agentID only if it is still unclaimed and its
	// window is open at now. It returns ErrClaimConflict otherwise.
	Claim(ctx context.Context, id, agentID int64, now time.Time) error
	// Release returns a held lead to the pool with a new window.
	Release(ctx context.Context, id, agentID int64, expiresAt time.Time) error
	RecordRejection(ctx context.Context, id, agentID int64) error
	UpdateStatus(ctx context.Context, id, agentID int64, status string) error
	// ExpireDue flags every unclaimed lead whose window closed at or before now
	// and returns the leads it flagged.
	ExpireDue(ctx context.Context, now time.Time) ([]*Lead, error)
	// Expire flags a single lead if it is still unclaimed and lapsed.
	Expire(ctx context.Context, id int64, now time.Time) (*Lead, error)
}

// MessageRepository defines persistence operations for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListForChat(ctx context.Context, chatID string, limit int) ([]*Message, error)
	DeleteChat(ctx context.Context, chatID string) (int64, error)
	PruneOld(ctx context.Context, chatID string, keepLimit int) error
	// Contacts returns one entry per chat userID has messages in.
	Contacts(ctx context.Context, userID int64) ([]*Contact, error)
}

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*Notification, error)
	SetRead(ctx context.Context, id, userID int64, isRead bool) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}
