package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"leaddesk/internal/domain"
	"leaddesk/internal/protocol"
	"leaddesk/internal/security"
)

// ChatService handles direct chats between two users. Content is encrypted
// at rest and each chat keeps at most MaxMessagesPerChat messages.
type ChatService struct {
	messages  domain.MessageRepository
	encryptor *security.Encryptor
	now       func() time.Time

	MaxMessagesPerChat int
}

func NewChatService(messages domain.MessageRepository, encryptor *security.Encryptor, maxMessages int) *ChatService {
	if maxMessages <= 0 {
		maxMessages = 1000
	}
	return &ChatService{
		messages:           messages,
		encryptor:          encryptor,
		now:                time.Now,
		MaxMessagesPerChat: maxMessages,
	}
}

// Join checks that userID is a party of chatID.
func (s *ChatService) Join(_ context.Context, userID int64, chatID string) error {
	if _, _, err := domain.ChatMembers(chatID); err != nil {
		return err
	}
	if !domain.IsChatMember(chatID, userID) {
		return fmt.Errorf("%w: not a member of %s", domain.ErrForbidden, chatID)
	}
	return nil
}

// History returns up to limit of the most recent messages, oldest first.
func (s *ChatService) History(ctx context.Context, userID int64, chatID string, limit int) ([]*domain.Message, error) {
	if err := s.Join(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.MaxMessagesPerChat {
		limit = s.MaxMessagesPerChat
	}
	msgs, err := s.messages.ListForChat(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]*domain.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		plain, err := s.encryptor.Decrypt(m.Content)
		if err != nil {
			slog.Warn("skipping undecryptable message", "chat_id", chatID, "message_id", m.ID, "error", err)
			continue
		}
		m.Content = plain
		out = append(out, m)
	}
	return out, nil
}

func (s *ChatService) Send(ctx context.Context, userID int64, chatID, content string) (*domain.Message, error) {
	if err := s.Join(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is required", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > protocol.MaxContentRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, protocol.MaxContentRunes)
	}

	sealed, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	m := &domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  userID,
		Content:   sealed,
		CreatedAt: s.now().UTC(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := s.messages.PruneOld(ctx, chatID, s.MaxMessagesPerChat); err != nil {
		slog.Warn("prune chat failed", "chat_id", chatID, "error", err)
	}

	m.Content = content
	return m, nil
}

// Contacts lists the user's chat peers, most recent conversation first.
func (s *ChatService) Contacts(ctx context.Context, userID int64) ([]*domain.Contact, error) {
	contacts, err := s.messages.Contacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	for _, c := range contacts {
		if c.LastMessage == "" {
			continue
		}
		plain, err := s.encryptor.Decrypt(c.LastMessage)
		if err != nil {
			c.LastMessage = ""
			continue
		}
		c.LastMessage = plain
	}
	return contacts, nil
}

// Clear deletes every message in the chat for both parties.
func (s *ChatService) Clear(ctx context.Context, userID int64, chatID string) (int64, error) {
	if err := s.Join(ctx, userID, chatID); err != nil {
		return 0, err
	}
	n, err := s.messages.DeleteChat(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("clear chat: %w", err)
	}
	return n, nil
}

// ToProtocolMessage converts a decrypted message to its wire form.
func ToProtocolMessage(m *domain.Message) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:       m.ID,
		ChatID:   m.ChatID,
		SenderID: m.SenderID,
		Content:  m.Content,
		Time:     m.CreatedAt,
	}
}

// ToProtocolContact converts a contact to its wire form.
func ToProtocolContact(c *domain.Contact) protocol.Contact {
	return protocol.Contact{
		UserID:        c.UserID,
		Username:      c.Username,
		ChatID:        c.ChatID,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
	}
}
