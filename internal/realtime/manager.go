// Package realtime is the agent side of the socket connection: one
// connection per session, typed events in and out.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"leaddesk/internal/protocol"
)

const (
	writeWait = 10 * time.Second

	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// ErrNotConnected is returned for events emitted while no connection is live.
// Such events are dropped, not queued.
var ErrNotConnected = errors.New("realtime: not connected")

// Handler receives every inbound event, including the local Connected,
// ConnectError and Disconnected events.
type Handler func(protocol.Event)

// Manager owns the session's socket connection. Consumers share one Manager
// and subscribe to its events.
type Manager struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}

	hmu      sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

func NewManager(url, token string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log:      log,
		handlers: make(map[int]Handler),
	}
}

// Subscribe registers h for all events. The returned func removes it.
func (m *Manager) Subscribe(h Handler) func() {
	m.hmu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = h
	m.hmu.Unlock()

	return func() {
		m.hmu.Lock()
		delete(m.handlers, id)
		m.hmu.Unlock()
	}
}

func (m *Manager) emit(e protocol.Event) {
	m.hmu.RLock()
	hs := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		hs = append(hs, h)
	}
	m.hmu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}

// Connected reports whether a connection is live.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Connect dials the server. It is a no-op when already connected. Connected
// is emitted once the connection is live; a failed dial emits ConnectError.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}

	conn, resp, err := m.dialer.DialContext(ctx, m.url, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		m.log.Warn("realtime connect failed", "url", m.url, "error", err)
		m.emit(protocol.ConnectError{Err: err})
		return err
	}

	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	done := make(chan struct{})
	m.conn = conn
	m.done = done
	m.mu.Unlock()

	go m.readLoop(conn, done)
	m.log.Debug("realtime connected", "url", m.url)
	m.emit(protocol.Connected{})
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	var readErr error
	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		conn.Close()
		m.emit(protocol.Disconnected{Err: readErr})
		close(done)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				readErr = err
			}
			return
		}
		e, err := protocol.Decode(frame)
		if err != nil {
			m.log.Warn("realtime dropped frame", "error", err)
			continue
		}
		m.emit(e)
	}
}

// Disconnect closes the live connection and waits for Disconnected to be
// emitted.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn, done := m.conn, m.done
	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	m.mu.Unlock()

	if conn == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(writeWait):
		conn.Close()
		<-done
	}
}

// Run keeps the session connected until ctx ends, redialing with backoff
// after each disconnect.
func (m *Manager) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		if err := m.Connect(ctx); err == nil {
			backoff = minBackoff
			m.mu.Lock()
			done := m.done
			m.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				m.Disconnect()
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (m *Manager) send(e protocol.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		m.log.Warn("realtime event dropped, not connected", "event", e.EventName())
		return ErrNotConnected
	}
	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return m.conn.WriteMessage(websocket.TextMessage, frame)
}

func (m *Manager) JoinRoom(chatID string) error {
	return m.send(protocol.JoinRoom{ChatID: chatID})
}

func (m *Manager) GetHistory(chatID string, limit int) error {
	return m.send(protocol.GetHistory{ChatID: chatID, Limit: limit})
}

func (m *Manager) SendMessage(chatID string, senderID int64, content string) error {
	return m.send(protocol.SendMessage{ChatID: chatID, SenderID: senderID, Content: content})
}

func (m *Manager) GetContactList(userID int64) error {
	return m.send(protocol.GetContactList{UserID: userID})
}

func (m *Manager) ClearChat(chatID string) error {
	return m.send(protocol.ClearChat{ChatID: chatID})
}

func (m *Manager) JoinNotificationRoom(userID int64) error {
	return m.send(protocol.JoinNotificationRoom{UserID: userID})
}
