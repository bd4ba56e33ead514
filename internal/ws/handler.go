package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"leaddesk/internal/domain"
	"leaddesk/internal/events"
	"leaddesk/internal/protocol"
	"leaddesk/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 64 * 1024
	defaultHistory = 50
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Options tunes the socket endpoint.
type Options struct {
	AllowedOrigins []string
	RatePerSecond  float64
	RateBurst      int
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin allows requests without an Origin header (non-browser
// clients) and browser requests from a listed origin. "*" allows any origin.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, wildcard := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || wildcard {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol), then dispatches events:
//   - joinRoom / getHistory / sendMessage / clearChat -> direct chats the caller is part of
//   - getContactList       -> the caller's chat peers
//   - joinNotificationRoom -> the caller's own user:<id> room
func MakeHandler(hub *Hub, auth Authenticator, chat *service.ChatService, opts Options) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(opts.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := auth.Authenticate(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := &client{
			id:     uuid.NewString(),
			userID: user.ID,
			role:   user.Role,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			rooms:  make(map[string]struct{}),
		}
		hub.Register(c)
		slog.Debug("ws: connected", "user_id", user.ID, "conn_id", c.id, "connections", hub.Online(user.ID))

		go writePump(c)

		s := &session{
			hub:     hub,
			chat:    chat,
			client:  c,
			user:    user,
			limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst),
		}
		s.readPump(r.Context())
		hub.Unregister(c)
		slog.Debug("ws: disconnected", "user_id", user.ID, "conn_id", c.id, "connections", hub.Online(user.ID))
	}
}

func writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// session handles the inbound frames of one connection.
type session struct {
	hub     *Hub
	chat    *service.ChatService
	client  *client
	user    *domain.User
	limiter *rate.Limiter
}

func (s *session) readPump(ctx context.Context) {
	conn := s.client.conn
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws: read failed", "user_id", s.user.ID, "error", err)
			}
			return
		}
		if !s.limiter.Allow() {
			s.replyError("", "rate limit exceeded")
			continue
		}
		ev, err := protocol.Decode(frame)
		if err != nil {
			s.replyError("", err.Error())
			continue
		}
		if err := s.dispatch(ctx, ev); err != nil {
			s.replyError(ev.EventName(), publicMessage(err))
		}
	}
}

func (s *session) dispatch(ctx context.Context, ev protocol.Event) error {
	switch e := ev.(type) {
	case protocol.JoinRoom:
		if err := s.chat.Join(ctx, s.user.ID, e.ChatID); err != nil {
			return err
		}
		s.hub.Join(s.client, events.ChatRoom(e.ChatID))
		return s.reply(protocol.JoinedRoom{ChatID: e.ChatID})

	case protocol.GetHistory:
		limit := e.Limit
		if limit == 0 {
			limit = defaultHistory
		}
		msgs, err := s.chat.History(ctx, s.user.ID, e.ChatID, limit)
		if err != nil {
			return err
		}
		out := protocol.History{ChatID: e.ChatID, Messages: make([]protocol.ChatMessage, 0, len(msgs))}
		for _, m := range msgs {
			out.Messages = append(out.Messages, service.ToProtocolMessage(m))
		}
		return s.reply(out)

	case protocol.SendMessage:
		if e.SenderID != s.user.ID {
			return fmt.Errorf("%w: senderId must be the caller", domain.ErrForbidden)
		}
		m, err := s.chat.Send(ctx, s.user.ID, e.ChatID, e.Content)
		if err != nil {
			return err
		}
		d, err := events.ToRoom(events.ChatRoom(e.ChatID), protocol.ReceiveMessage{Message: service.ToProtocolMessage(m)})
		if err != nil {
			return err
		}
		return s.hub.Publish(ctx, d)

	case protocol.GetContactList:
		if e.UserID != s.user.ID {
			return fmt.Errorf("%w: contact list of another user", domain.ErrForbidden)
		}
		contacts, err := s.chat.Contacts(ctx, s.user.ID)
		if err != nil {
			return err
		}
		out := protocol.ContactList{Contacts: make([]protocol.Contact, 0, len(contacts))}
		for _, c := range contacts {
			out.Contacts = append(out.Contacts, service.ToProtocolContact(c))
		}
		return s.reply(out)

	case protocol.ClearChat:
		if _, err := s.chat.Clear(ctx, s.user.ID, e.ChatID); err != nil {
			return err
		}
		d, err := events.ToRoom(events.ChatRoom(e.ChatID), protocol.ChatCleared{ChatID: e.ChatID})
		if err != nil {
			return err
		}
		return s.hub.Publish(ctx, d)

	case protocol.JoinNotificationRoom:
		if e.UserID != s.user.ID {
			return fmt.Errorf("%w: notification room of another user", domain.ErrForbidden)
		}
		room := events.UserRoom(e.UserID)
		s.hub.Join(s.client, room)
		return s.reply(protocol.JoinedNotificationRoom{UserID: e.UserID, Room: room})
	}
	return fmt.Errorf("%w: %s is not accepted from clients", protocol.ErrUnknownEvent, ev.EventName())
}

func (s *session) reply(e protocol.Event) error {
	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	s.hub.send(s.client, frame)
	return nil
}

func (s *session) replyError(event, msg string) {
	frame, err := protocol.Encode(protocol.Error{Event: event, Message: msg})
	if err != nil {
		return
	}
	s.hub.send(s.client, frame)
}

// publicMessage hides internal failures from clients.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, protocol.ErrUnknownEvent),
		errors.Is(err, protocol.ErrInvalidPayload):
		return err.Error()
	}
	slog.Error("ws: event failed", "error", err)
	return "internal error"
}
