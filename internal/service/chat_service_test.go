package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leaddesk/internal/domain"
	"leaddesk/internal/security"
	"leaddesk/internal/service"
)

func newChatService(t *testing.T) (*service.ChatService, *MockMessageRepo, *security.Encryptor) {
	t.Helper()
	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)
	repo := new(MockMessageRepo)
	return service.NewChatService(repo, enc, 3), repo, enc
}

func TestChatServiceSend(t *testing.T) {
	svc, repo, enc := newChatService(t)
	chatID := domain.DirectChatID(1, 2)

	var stored *domain.Message
	repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		m := args.Get(1).(*domain.Message)
		cp := *m
		stored = &cp
	}).Return(nil)
	repo.On("PruneOld", mock.Anything, chatID, 3).Return(nil)

	m, err := svc.Send(context.Background(), 1, chatID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)
	assert.NotEmpty(t, m.ID)

	require.NotNil(t, stored)
	assert.NotEqual(t, "hello", stored.Content)
	plain, err := enc.Decrypt(stored.Content)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	t.Run("Outsider", func(t *testing.T) {
		_, err := svc.Send(context.Background(), 3, chatID, "hi")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := svc.Send(context.Background(), 1, chatID, "   ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("TooLong", func(t *testing.T) {
		_, err := svc.Send(context.Background(), 1, chatID, strings.Repeat("é", 5001))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("MalformedChat", func(t *testing.T) {
		_, err := svc.Send(context.Background(), 1, "lobby", "hi")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestChatServiceHistory(t *testing.T) {
	svc, repo, enc := newChatService(t)
	chatID := domain.DirectChatID(1, 2)
	base := time.Now().UTC()

	seal := func(s string) string {
		out, err := enc.Encrypt(s)
		require.NoError(t, err)
		return out
	}
	repo.On("ListForChat", mock.Anything, chatID, 3).Return([]*domain.Message{
		{ID: "c", ChatID: chatID, Content: seal("third"), CreatedAt: base.Add(2 * time.Second)},
		{ID: "b", ChatID: chatID, Content: "garbage", CreatedAt: base.Add(time.Second)},
		{ID: "a", ChatID: chatID, Content: seal("first"), CreatedAt: base},
	}, nil)

	msgs, err := svc.History(context.Background(), 2, chatID, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[1].Content)
}

func TestChatServiceContactsAndClear(t *testing.T) {
	svc, repo, enc := newChatService(t)
	chatID := domain.DirectChatID(1, 2)
	sealed, err := enc.Encrypt("latest")
	require.NoError(t, err)

	repo.On("Contacts", mock.Anything, int64(1)).Return([]*domain.Contact{
		{UserID: 2, Username: "bob", ChatID: chatID, LastMessage: sealed},
	}, nil)
	repo.On("DeleteChat", mock.Anything, chatID).Return(int64(4), nil)

	contacts, err := svc.Contacts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "latest", contacts[0].LastMessage)

	n, err := svc.Clear(context.Background(), 2, chatID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = svc.Clear(context.Background(), 5, chatID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestChatServiceJoinRequiresCanonicalID(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, 3, domain.DirectChatID(9, 3)))
	assert.Equal(t, "chat_3_9", domain.DirectChatID(9, 3))

	for _, id := range []string{"chat_9_3", "chat_03_9", "chat_+3_9", "chat_3_3", "chat_3_09", "chat_0_3", "chat_3", "room_3_9"} {
		t.Run(id, func(t *testing.T) {
			assert.ErrorIs(t, svc.Join(ctx, 3, id), domain.ErrInvalidInput)
			_, err := svc.Send(ctx, 3, id, "hi")
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
