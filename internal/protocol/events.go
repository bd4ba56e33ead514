// Package protocol defines the named-event frames exchanged over the real-time
// connection. Every event name maps to exactly one payload type, and frames are
// validated when they are decoded.
package protocol

import (
	"encoding/json"
	"time"
)

// Event names on the wire.
const (
	// client -> server
	EventJoinRoom             = "joinRoom"
	EventGetHistory           = "getHistory"
	EventSendMessage          = "sendMessage"
	EventGetContactList       = "getContactList"
	EventClearChat            = "clearChat"
	EventJoinNotificationRoom = "joinNotificationRoom"

	// server -> client
	EventJoinedRoom             = "joinedRoom"
	EventHistory                = "history"
	EventReceiveMessage         = "receiveMessage"
	EventContactList            = "contactList"
	EventChatCleared            = "chatCleared"
	EventNewNotification        = "newNotification"
	EventJoinedNotificationRoom = "joinedNotificationRoom"
	EventLeadUpdated            = "leadUpdated"
	EventError                  = "error"

	// connection lifecycle, raised locally by the client and never sent
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
)

// Event is implemented by every payload type in this package.
type Event interface {
	EventName() string
	validate() error
}

// Envelope is the JSON frame carrying one event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChatMessage is a chat message as seen by clients.
type ChatMessage struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chatId"`
	SenderID int64     `json:"senderId"`
	Content  string    `json:"content"`
	Time     time.Time `json:"time"`
}

// Contact is a contact list entry.
type Contact struct {
	UserID        int64      `json:"userId"`
	Username      string     `json:"username"`
	ChatID        string     `json:"chatId"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// Notification is a pushed user notification.
type Notification struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Lead change actions carried by LeadUpdated.
const (
	LeadClaimed   = "claimed"
	LeadRejected  = "rejected"
	LeadReleased  = "released"
	LeadStatus    = "status"
	LeadExpired   = "expired"
	LeadRequested = "requested"
)

type JoinRoom struct {
	ChatID string `json:"chatId"`
}

type GetHistory struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit"`
}

type SendMessage struct {
	ChatID   string `json:"chatId"`
	SenderID int64  `json:"senderId"`
	Content  string `json:"content"`
}

type GetContactList struct {
	UserID int64 `json:"userId"`
}

type ClearChat struct {
	ChatID string `json:"chatId"`
}

type JoinNotificationRoom struct {
	UserID int64 `json:"userId"`
}

type JoinedRoom struct {
	ChatID string `json:"chatId"`
}

type History struct {
	ChatID   string        `json:"chatId"`
	Messages []ChatMessage `json:"messages"`
}

type ReceiveMessage struct {
	Message ChatMessage `json:"message"`
}

type ContactList struct {
	Contacts []Contact `json:"contacts"`
}

type ChatCleared struct {
	ChatID string `json:"chatId"`
}

type NewNotification struct {
	Notification Notification `json:"notification"`
}

type JoinedNotificationRoom struct {
	UserID int64  `json:"userId"`
	Room   string `json:"room"`
}

// LeadUpdated tells agents that a lead changed and their lead list is stale.
type LeadUpdated struct {
	LeadID int64  `json:"leadId"`
	Action string `json:"action"`
}

// Error reports a rejected client event.
type Error struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// Connected is raised when the connection becomes live, including after a
// reconnect. Room joins must be redone on every Connected.
type Connected struct{}

// ConnectError is raised when a dial attempt fails.
type ConnectError struct {
	Err error `json:"-"`
}

// Disconnected is raised when a live connection ends.
type Disconnected struct {
	Err error `json:"-"`
}

func (JoinRoom) EventName() string               { return EventJoinRoom }
func (GetHistory) EventName() string             { return EventGetHistory }
func (SendMessage) EventName() string            { return EventSendMessage }
func (GetContactList) EventName() string         { return EventGetContactList }
func (ClearChat) EventName() string              { return EventClearChat }
func (JoinNotificationRoom) EventName() string   { return EventJoinNotificationRoom }
func (JoinedRoom) EventName() string             { return EventJoinedRoom }
func (History) EventName() string                { return EventHistory }
func (ReceiveMessage) EventName() string         { return EventReceiveMessage }
func (ContactList) EventName() string            { return EventContactList }
func (ChatCleared) EventName() string            { return EventChatCleared }
func (NewNotification) EventName() string        { return EventNewNotification }
func (JoinedNotificationRoom) EventName() string { return EventJoinedNotificationRoom }
func (LeadUpdated) EventName() string            { return EventLeadUpdated }
func (Error) EventName() string                  { return EventError }
func (Connected) EventName() string              { return EventConnect }
func (ConnectError) EventName() string           { return EventConnectError }
func (Disconnected) EventName() string           { return EventDisconnect }
