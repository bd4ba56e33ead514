package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"leaddesk/internal/domain"
	"leaddesk/internal/events"
	"leaddesk/internal/protocol"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationService stores user notifications and pushes them to the
// user's notification room.
type NotificationService struct {
	notes domain.NotificationRepository
	bus   events.Bus
	now   func() time.Time
}

func NewNotificationService(notes domain.NotificationRepository, bus events.Bus) *NotificationService {
	return &NotificationService{notes: notes, bus: bus, now: time.Now}
}

// Notify persists a notification, then publishes it. A publish failure is
// logged; the notification is still listed on the next fetch.
func (s *NotificationService) Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, message string, metadata any) (*domain.Notification, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: notification type %q", domain.ErrInvalidInput, typ)
	}
	n := &domain.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", domain.ErrInvalidInput, err)
		}
		n.Metadata = raw
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	d, err := events.ToRoom(events.UserRoom(userID), protocol.NewNotification{Notification: ToProtocolNotification(n)})
	if err == nil {
		err = s.bus.Publish(ctx, d)
	}
	if err != nil {
		slog.Warn("publish notification failed", "user_id", userID, "notification_id", n.ID, "error", err)
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.notes.ListForUser(ctx, userID, unreadOnly, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64, isRead bool) error {
	return s.notes.SetRead(ctx, id, userID, isRead)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.notes.MarkAllRead(ctx, userID)
}

// ToProtocolNotification converts a stored notification to its wire form.
func ToProtocolNotification(n *domain.Notification) protocol.Notification {
	return protocol.Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
