// Package events fans real-time deliveries out to the socket hub. A single
// instance uses MemoryBus; several instances behind a load balancer share a
// RedisBus so that every hub sees every delivery.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"leaddesk/internal/protocol"
)

// Audience selects which connections receive a Delivery.
type Audience string

const (
	// AudienceRoom delivers to members of Delivery.Room.
	AudienceRoom Audience = "room"
	// AudienceAgents delivers to every connection authenticated as an agent.
	AudienceAgents Audience = "agents"
)

// Delivery is an encoded protocol frame plus its addressees.
type Delivery struct {
	Audience Audience        `json:"audience"`
	Room     string          `json:"room,omitempty"`
	Frame    json.RawMessage `json:"frame"`
}

// Bus publishes deliveries and hands them to a subscriber.
type Bus interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe calls fn for every delivery until ctx is cancelled.
	Subscribe(ctx context.Context, fn func(Delivery)) error
	Close() error
}

// ToRoom encodes e for the members of room.
func ToRoom(room string, e protocol.Event) (Delivery, error) {
	frame, err := protocol.Encode(e)
	if err != nil {
		return Delivery{}, fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	return Delivery{Audience: AudienceRoom, Room: room, Frame: frame}, nil
}

// ToAgents encodes e for every connected agent.
func ToAgents(e protocol.Event) (Delivery, error) {
	frame, err := protocol.Encode(e)
	if err != nil {
		return Delivery{}, fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	return Delivery{Audience: AudienceAgents, Frame: frame}, nil
}

// UserRoom is the notification room of a user.
func UserRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// ChatRoom is the socket room of a chat.
func ChatRoom(chatID string) string {
	return "chat:" + chatID
}
