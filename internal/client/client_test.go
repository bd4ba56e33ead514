package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaddesk/internal/client"
	"leaddesk/internal/config"
	"leaddesk/internal/events"
	"leaddesk/internal/httpserver"
	"leaddesk/internal/security"
	"leaddesk/internal/service"
	"leaddesk/internal/store/sqlite"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	bus := events.NewMemoryBus(64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Subscribe(ctx, func(events.Delivery) {})

	notes := service.NewNotificationService(sqlite.NewNotificationRepo(db), bus)
	cfg := &config.Config{AppName: "leaddesk", CORSOrigins: []string{"*"}, RateLimitPerSecond: 100, RateLimitBurst: 100}
	router := httpserver.NewRouter(cfg, httpserver.Services{
		Auth:          service.NewAuthService(sqlite.NewUserRepo(db), security.NewTokenService("secret", time.Hour), security.NewPasswordHasher(4)),
		Leads:         service.NewLeadService(sqlite.NewLeadRepo(db), notes, bus, 15*time.Minute),
		Notifications: notes,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func register(t *testing.T, srv *httptest.Server, username, role string) {
	t.Helper()
	resp := post(t, srv.URL+"/api/auth/register", "", map[string]string{
		"username": username, "password": "password123", "role": role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func login(t *testing.T, srv *httptest.Server, username string) (*client.Client, *client.User) {
	t.Helper()
	c := client.New(srv.URL+"/api", nil)
	user, err := c.Login(context.Background(), username, "password123")
	require.NoError(t, err)
	require.NotEmpty(t, c.Token())
	return c, user
}

func TestClientAgainstServer(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	register(t, srv, "buyer", "buyer")
	register(t, srv, "agent1", "agent")
	register(t, srv, "agent2", "agent")

	buyer, _ := login(t, srv, "buyer")
	agent1, user1 := login(t, srv, "agent1")
	agent2, _ := login(t, srv, "agent2")
	assert.Equal(t, "agent", user1.Role)

	resp := post(t, srv.URL+"/api/tour/request", buyer.Token(), map[string]any{
		"postId": 5, "date": "2026-11-02", "time": "10:30",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	list, err := agent1.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	lead := list[0]
	assert.False(t, lead.ActiveLead)
	require.NotNil(t, lead.TimerExpiresAt)
	_, err = time.Parse(time.RFC3339Nano, *lead.TimerExpiresAt)
	assert.NoError(t, err)

	require.NoError(t, agent1.ClaimLead(ctx, lead.ID))

	err = agent2.ClaimLead(ctx, lead.ID)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	list, err = agent1.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].ActiveLead)

	require.NoError(t, agent1.UpdateStatus(ctx, lead.ID, "Confirmed"))
	err = agent2.UpdateStatus(ctx, lead.ID, "Cancelled")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	require.NoError(t, agent1.RejectLead(ctx, lead.ID))
	list, err = agent1.ListLeads(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = agent2.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].ActiveLead)
	assert.Equal(t, "Confirmed", list[0].Status)

	notes, err := buyer.ListNotifications(ctx, true)
	require.NoError(t, err)
	assert.NotEmpty(t, notes)
	for _, n := range notes {
		assert.False(t, n.IsRead)
	}
}

func TestClientLoginFailure(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL+"/api", nil)
	_, err := c.Login(context.Background(), "nobody", "password123")

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Empty(t, c.Token())
}

func TestClientRejectsNonSuccessEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"error","message":"lead is gone"}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL, nil)
	err := c.ClaimLead(context.Background(), 1)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "lead is gone", apiErr.Message)

	_, err = c.ListLeads(context.Background())
	assert.Error(t, err)
}
