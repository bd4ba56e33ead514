package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the marketplace role of a user.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleAgent   Role = "agent"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleAgent, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	Role           Role      `db:"role" json:"role"`
	IsActive       bool      `db:"is_active" json:"isActive"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Lead status labels written by the server. Status stays free text: agents may
// set any label through UpdateStatus.
const (
	LeadStatusPending   = "Pending"
	LeadStatusConfirmed = "Confirmed"
	LeadStatusCancelled = "Cancelled"
	LeadStatusExpired   = "Expired"

	BookingStatusOpen     = "open"
	BookingStatusClaimed  = "claimed"
	BookingStatusReleased = "released"
	BookingStatusExpired  = "expired"
)

// Lead is a buyer's tour request. AgentID is nil until an agent claims it.
// TimerExpiresAt is the authoritative end of the claim window.
type Lead struct {
	ID             int64      `db:"id" json:"id"`
	PostID         int64      `db:"post_id" json:"postId"`
	BuyerID        int64      `db:"buyer_id" json:"buyerId"`
	AgentID        *int64     `db:"agent_id" json:"agentId"`
	Date           string     `db:"tour_date" json:"date"`
	Time           string     `db:"tour_time" json:"time"`
	Status         string     `db:"status" json:"status"`
	BookingStatus  string     `db:"booking_status" json:"bookingStatus"`
	ExpiredStatus  bool       `db:"expired_status" json:"expiredStatus"`
	TimerExpiresAt *time.Time `db:"timer_expires_at" json:"timerExpiresAt"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`

	// ActiveLead is computed per viewer and never stored.
	ActiveLead bool `db:"-" json:"activeLead"`
}

// HeldBy reports whether the lead is currently claimed by agentID.
func (l *Lead) HeldBy(agentID int64) bool {
	return l.AgentID != nil && *l.AgentID == agentID
}

// Claimable reports whether any agent may still claim the lead at now.
func (l *Lead) Claimable(now time.Time) bool {
	if l.AgentID != nil || l.ExpiredStatus || l.TimerExpiresAt == nil {
		return false
	}
	return l.TimerExpiresAt.After(now)
}

// Message is a single chat message. Content is encrypted at rest.
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chatId"`
	SenderID  int64     `db:"sender_id" json:"senderId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"time"`
}

// Contact is a chat peer as shown in a contact list.
type Contact struct {
	UserID        int64      `json:"userId"`
	Username      string     `json:"username"`
	ChatID        string     `json:"chatId"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// NotificationType enumerates user notification kinds.
type NotificationType string

const (
	NotificationComment NotificationType = "comment"
	NotificationReply   NotificationType = "reply"
	NotificationLike    NotificationType = "like"
	NotificationFollow  NotificationType = "follow"
	NotificationSystem  NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationComment, NotificationReply, NotificationLike, NotificationFollow, NotificationSystem:
		return true
	}
	return false
}

// Notification is a user-addressed event record.
type Notification struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"userId"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Metadata  json.RawMessage  `db:"metadata" json:"metadata,omitempty"`
	IsRead    bool             `db:"is_read" json:"isRead"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// DirectChatID returns the room id shared by two users. The order of the
// arguments does not matter.
func DirectChatID(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%d_%d", a, b)
}

// ChatMembers parses a direct chat id back into its two user ids. Only the
// form produced by DirectChatID is accepted.
func ChatMembers(chatID string) (int64, int64, error) {
	rest, ok := strings.CutPrefix(chatID, "chat_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: chat id %q", ErrInvalidInput, chatID)
	}
	lo, hi, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: chat id %q", ErrInvalidInput, chatID)
	}
	a, errA := strconv.ParseInt(lo, 10, 64)
	b, errB := strconv.ParseInt(hi, 10, 64)
	if errA != nil || errB != nil || a <= 0 || a >= b || chatID != DirectChatID(a, b) {
		return 0, 0, fmt.Errorf("%w: chat id %q", ErrInvalidInput, chatID)
	}
	return a, b, nil
}

// IsChatMember reports whether userID is one of the two parties of chatID.
func IsChatMember(chatID string, userID int64) bool {
	a, b, err := ChatMembers(chatID)
	if err != nil {
		return false
	}
	return a == userID || b == userID
}
