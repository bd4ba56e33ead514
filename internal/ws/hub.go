package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"leaddesk/internal/domain"
	"leaddesk/internal/events"
)

const sendBuffer = 64

// client is one authenticated socket connection. Frames are written only by
// its write pump, fed through send.
type client struct {
	id     string
	userID int64
	role   domain.Role
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

// Hub manages active WebSocket connections keyed by user ID and by room, and
// relays bus deliveries to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]map[*client]struct{}
	rooms map[string]map[*client]struct{}
	bus   events.Bus
}

func NewHub(bus events.Bus) *Hub {
	return &Hub{
		conns: make(map[int64]map[*client]struct{}),
		rooms: make(map[string]map[*client]struct{}),
		bus:   bus,
	}
}

// Run relays deliveries from the bus until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.bus.Subscribe(ctx, h.Deliver)
}

// Publish hands a delivery to the bus so every instance sees it.
func (h *Hub) Publish(ctx context.Context, d events.Delivery) error {
	return h.bus.Publish(ctx, d)
}

// Register adds a connection for its user.
func (h *Hub) Register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[c.userID] == nil {
		h.conns[c.userID] = make(map[*client]struct{})
	}
	h.conns[c.userID][c] = struct{}{}
}

// Unregister removes a connection from its user and every room it joined,
// then closes its send queue.
func (h *Hub) Unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	if conns, ok := h.conns[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.conns, c.userID)
		}
	}
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
}

// Join adds the connection to room. Joining twice is a no-op.
func (h *Hub) Join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Deliver writes a delivery to the connections it addresses on this instance.
func (h *Hub) Deliver(d events.Delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch d.Audience {
	case events.AudienceRoom:
		for c := range h.rooms[d.Room] {
			h.enqueueLocked(c, d.Frame)
		}
	case events.AudienceAgents:
		for _, conns := range h.conns {
			for c := range conns {
				if c.role == domain.RoleAgent {
					h.enqueueLocked(c, d.Frame)
				}
			}
		}
	default:
		slog.Warn("ws: delivery with unknown audience", "audience", d.Audience)
	}
}

// send queues a frame for a single connection.
func (h *Hub) send(c *client, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.closed {
		h.enqueueLocked(c, frame)
	}
}

// enqueueLocked drops a connection whose queue is full rather than block
// every other recipient on it.
func (h *Hub) enqueueLocked(c *client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		slog.Warn("ws: send queue full, dropping connection", "user_id", c.userID, "conn_id", c.id)
		h.dropLocked(c)
	}
}

// Online reports the number of connections held for userID.
func (h *Hub) Online(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}
