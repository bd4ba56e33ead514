package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"leaddesk/internal/domain"
	"leaddesk/internal/events"
	"leaddesk/internal/protocol"
)

type MockLeadRepo struct {
	mock.Mock
}

func (m *MockLeadRepo) Create(ctx context.Context, l *domain.Lead) error {
	args := m.Called(ctx, l)
	if args.Error(0) == nil {
		l.ID = 100
	}
	return args.Error(0)
}

func (m *MockLeadRepo) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadRepo) ListForAgent(ctx context.Context, agentID int64, now time.Time) ([]*domain.Lead, error) {
	args := m.Called(ctx, agentID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Lead), args.Error(1)
}

func (m *MockLeadRepo) ListForBuyer(ctx context.Context, buyerID int64) ([]*domain.Lead, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Lead), args.Error(1)
}

func (m *MockLeadRepo) Claim(ctx context.Context, id, agentID int64, now time.Time) error {
	return m.Called(ctx, id, agentID, now).Error(0)
}

func (m *MockLeadRepo) Release(ctx context.Context, id, agentID int64, expiresAt time.Time) error {
	return m.Called(ctx, id, agentID, expiresAt).Error(0)
}

func (m *MockLeadRepo) RecordRejection(ctx context.Context, id, agentID int64) error {
	return m.Called(ctx, id, agentID).Error(0)
}

func (m *MockLeadRepo) UpdateStatus(ctx context.Context, id, agentID int64, status string) error {
	return m.Called(ctx, id, agentID, status).Error(0)
}

func (m *MockLeadRepo) ExpireDue(ctx context.Context, now time.Time) ([]*domain.Lead, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Lead), args.Error(1)
}

func (m *MockLeadRepo) Expire(ctx context.Context, id int64, now time.Time) (*domain.Lead, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, message string, metadata any) (*domain.Notification, error) {
	args := m.Called(ctx, userID, typ, title, message, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) ScheduleExpiry(ctx context.Context, leadID int64, at time.Time) error {
	return m.Called(ctx, leadID, at).Error(0)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessageRepo) ListForChat(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, chatID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) DeleteChat(ctx context.Context, chatID string) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) PruneOld(ctx context.Context, chatID string, keepLimit int) error {
	return m.Called(ctx, chatID, keepLimit).Error(0)
}

func (m *MockMessageRepo) Contacts(ctx context.Context, userID int64) ([]*domain.Contact, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Contact), args.Error(1)
}

type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	if args.Error(0) == nil {
		n.ID = 55
	}
	return args.Error(0)
}

func (m *MockNotificationRepo) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepo) SetRead(ctx context.Context, id, userID int64, isRead bool) error {
	return m.Called(ctx, id, userID, isRead).Error(0)
}

func (m *MockNotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// recordingBus keeps every published delivery.
type recordingBus struct {
	mu  sync.Mutex
	got []events.Delivery
}

func (b *recordingBus) Publish(_ context.Context, d events.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, d)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, _ func(events.Delivery)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *recordingBus) Close() error { return nil }

// leadActions decodes the LeadUpdated actions published so far.
func (b *recordingBus) leadActions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, d := range b.got {
		ev, err := protocol.Decode(d.Frame)
		if err != nil {
			continue
		}
		if lu, ok := ev.(protocol.LeadUpdated); ok && d.Audience == events.AudienceAgents {
			out = append(out, lu.Action)
		}
	}
	return out
}

func (b *recordingBus) rooms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, d := range b.got {
		out = append(out, d.Room)
	}
	return out
}

func (b *recordingBus) frame(i int) protocol.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var env protocol.Envelope
	_ = json.Unmarshal(b.got[i].Frame, &env)
	return env
}
