package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leaddesk/internal/domain"
	"leaddesk/internal/protocol"
	"leaddesk/internal/service"
)

func TestNotificationServiceNotify(t *testing.T) {
	repo := new(MockNotificationRepo)
	bus := &recordingBus{}
	svc := service.NewNotificationService(repo, bus)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == 3 && string(n.Metadata) == `{"leadId":5}`
	})).Return(nil)

	n, err := svc.Notify(context.Background(), 3, domain.NotificationSystem, "Tour claimed", "hi", map[string]int{"leadId": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(55), n.ID)

	assert.Equal(t, []string{"user:3"}, bus.rooms())
	assert.Equal(t, protocol.EventNewNotification, bus.frame(0).Event)

	_, err = svc.Notify(context.Background(), 3, "bogus", "t", "m", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNotificationServiceList(t *testing.T) {
	repo := new(MockNotificationRepo)
	svc := service.NewNotificationService(repo, &recordingBus{})

	repo.On("ListForUser", mock.Anything, int64(3), true, 50).Return([]*domain.Notification{}, nil)
	repo.On("ListForUser", mock.Anything, int64(3), false, 200).Return([]*domain.Notification{}, nil)
	repo.On("SetRead", mock.Anything, int64(9), int64(3), true).Return(nil)
	repo.On("MarkAllRead", mock.Anything, int64(3)).Return(int64(2), nil)

	_, err := svc.List(context.Background(), 3, true, 0)
	require.NoError(t, err)
	_, err = svc.List(context.Background(), 3, false, 10000)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(context.Background(), 3, 9, true))
	n, err := svc.MarkAllRead(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	repo.AssertExpectations(t)
}
