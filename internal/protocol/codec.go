package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// MaxContentRunes bounds the length of a chat message.
const MaxContentRunes = 5000

// Encode wraps e in an Envelope and marshals it. Local lifecycle events
// cannot be encoded.
func Encode(e Event) ([]byte, error) {
	if isLocal(e.EventName()) {
		return nil, fmt.Errorf("%w: %s is local only", ErrUnknownEvent, e.EventName())
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.EventName(), err)
	}
	return json.Marshal(Envelope{Event: e.EventName(), Data: data})
}

// Decode parses a frame into its concrete event type and validates it.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	e, err := newEvent(env.Event)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: %s has no data", ErrInvalidPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, e); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	// e holds a pointer; hand back the value so callers switch on value types.
	ev := deref(e)
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func newEvent(name string) (any, error) {
	switch name {
	case EventJoinRoom:
		return &JoinRoom{}, nil
	case EventGetHistory:
		return &GetHistory{}, nil
	case EventSendMessage:
		return &SendMessage{}, nil
	case EventGetContactList:
		return &GetContactList{}, nil
	case EventClearChat:
		return &ClearChat{}, nil
	case EventJoinNotificationRoom:
		return &JoinNotificationRoom{}, nil
	case EventJoinedRoom:
		return &JoinedRoom{}, nil
	case EventHistory:
		return &History{}, nil
	case EventReceiveMessage:
		return &ReceiveMessage{}, nil
	case EventContactList:
		return &ContactList{}, nil
	case EventChatCleared:
		return &ChatCleared{}, nil
	case EventNewNotification:
		return &NewNotification{}, nil
	case EventJoinedNotificationRoom:
		return &JoinedNotificationRoom{}, nil
	case EventLeadUpdated:
		return &LeadUpdated{}, nil
	case EventError:
		return &Error{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

func deref(v any) Event {
	switch e := v.(type) {
	case *JoinRoom:
		return *e
	case *GetHistory:
		return *e
	case *SendMessage:
		return *e
	case *GetContactList:
		return *e
	case *ClearChat:
		return *e
	case *JoinNotificationRoom:
		return *e
	case *JoinedRoom:
		return *e
	case *History:
		return *e
	case *ReceiveMessage:
		return *e
	case *ContactList:
		return *e
	case *ChatCleared:
		return *e
	case *NewNotification:
		return *e
	case *JoinedNotificationRoom:
		return *e
	case *LeadUpdated:
		return *e
	case *Error:
		return *e
	}
	panic(fmt.Sprintf("protocol: no value type for %T", v))
}

func isLocal(name string) bool {
	return name == EventConnect || name == EventConnectError || name == EventDisconnect
}

func invalid(event, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, event, fmt.Sprintf(format, args...))
}

func requireChat(event, chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return invalid(event, "chatId is required")
	}
	return nil
}

func requireUser(event string, userID int64) error {
	if userID <= 0 {
		return invalid(event, "userId must be positive")
	}
	return nil
}

func (e JoinRoom) validate() error { return requireChat(EventJoinRoom, e.ChatID) }

func (e GetHistory) validate() error {
	if e.Limit < 0 {
		return invalid(EventGetHistory, "limit must not be negative")
	}
	return requireChat(EventGetHistory, e.ChatID)
}

func (e SendMessage) validate() error {
	if err := requireChat(EventSendMessage, e.ChatID); err != nil {
		return err
	}
	if err := requireUser(EventSendMessage, e.SenderID); err != nil {
		return err
	}
	if strings.TrimSpace(e.Content) == "" {
		return invalid(EventSendMessage, "content is required")
	}
	if len([]rune(e.Content)) > MaxContentRunes {
		return invalid(EventSendMessage, "content exceeds %d characters", MaxContentRunes)
	}
	return nil
}

func (e GetContactList) validate() error { return requireUser(EventGetContactList, e.UserID) }
func (e ClearChat) validate() error      { return requireChat(EventClearChat, e.ChatID) }
func (e JoinNotificationRoom) validate() error {
	return requireUser(EventJoinNotificationRoom, e.UserID)
}
func (e JoinedRoom) validate() error { return requireChat(EventJoinedRoom, e.ChatID) }

func (e History) validate() error {
	if err := requireChat(EventHistory, e.ChatID); err != nil {
		return err
	}
	for _, m := range e.Messages {
		if m.ChatID != "" && m.ChatID != e.ChatID {
			return invalid(EventHistory, "message %s belongs to %s", m.ID, m.ChatID)
		}
	}
	return nil
}

func (e ReceiveMessage) validate() error { return requireChat(EventReceiveMessage, e.Message.ChatID) }
func (e ContactList) validate() error    { return nil }
func (e ChatCleared) validate() error    { return requireChat(EventChatCleared, e.ChatID) }

func (e NewNotification) validate() error {
	return requireUser(EventNewNotification, e.Notification.UserID)
}

func (e JoinedNotificationRoom) validate() error {
	return requireUser(EventJoinedNotificationRoom, e.UserID)
}

func (e LeadUpdated) validate() error {
	if e.LeadID <= 0 {
		return invalid(EventLeadUpdated, "leadId must be positive")
	}
	return nil
}

func (e Error) validate() error        { return nil }
func (e Connected) validate() error    { return nil }
func (e ConnectError) validate() error { return nil }
func (e Disconnected) validate() error { return nil }
