package realtime

import (
	"sort"
	"sync"

	"leaddesk/internal/protocol"
)

// Rooms buffers chat messages per room, ordered by message time whatever
// order they arrived in.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string][]protocol.ChatMessage
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string][]protocol.ChatMessage)}
}

// Handle applies a room event: history replaces a room's buffer, a received
// message is inserted in time order and a cleared chat empties its buffer.
// Other events are ignored.
func (r *Rooms) Handle(e protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev := e.(type) {
	case protocol.History:
		msgs := make([]protocol.ChatMessage, len(ev.Messages))
		copy(msgs, ev.Messages)
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Time.Before(msgs[j].Time) })
		r.rooms[ev.ChatID] = msgs
	case protocol.ReceiveMessage:
		r.insertLocked(ev.Message)
	case protocol.ChatCleared:
		r.rooms[ev.ChatID] = nil
	}
}

func (r *Rooms) insertLocked(msg protocol.ChatMessage) {
	msgs := r.rooms[msg.ChatID]
	for _, m := range msgs {
		if m.ID != "" && m.ID == msg.ID {
			return
		}
	}
	// after any message with the same time, so equal stamps keep arrival order
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].Time.After(msg.Time) })
	msgs = append(msgs, protocol.ChatMessage{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	r.rooms[msg.ChatID] = msgs
}

// Messages returns a copy of the room's buffer, oldest first.
func (r *Rooms) Messages(chatID string) []protocol.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.rooms[chatID]
	out := make([]protocol.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
