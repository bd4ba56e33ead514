// Package client talks to the leaddesk REST API on behalf of an agent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"leaddesk/internal/leads"
)

// APIError is a non-2xx answer or an envelope whose status is not "success".
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// User is the account returned at login.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Notification is a stored user notification.
type Notification struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Client is a LeadAPI over HTTP. BaseURL includes the /api prefix.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

var _ leads.LeadAPI = (*Client)(nil)

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Token returns the bearer token set by Login or SetToken.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
		User        User   `json:"user"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("api: login returned no token")
	}
	c.SetToken(out.AccessToken)
	return &out.User, nil
}

func (c *Client) ListLeads(ctx context.Context) ([]*leads.Lead, error) {
	var out struct {
		Status string        `json:"status"`
		Leads  []*leads.Lead `json:"leads"`
	}
	if err := c.do(ctx, http.MethodGet, "/tour/leads", nil, &out); err != nil {
		return nil, err
	}
	if err := checkStatus(out.Status, ""); err != nil {
		return nil, err
	}
	return out.Leads, nil
}

func (c *Client) ClaimLead(ctx context.Context, id int64) error {
	return c.envelope(ctx, http.MethodPatch, "/tour/claim-tour/"+strconv.FormatInt(id, 10), nil)
}

func (c *Client) RejectLead(ctx context.Context, id int64) error {
	return c.envelope(ctx, http.MethodPost, "/tour/reject-tour/"+strconv.FormatInt(id, 10), nil)
}

func (c *Client) UpdateStatus(ctx context.Context, id int64, status string) error {
	body := map[string]string{"status": status}
	return c.envelope(ctx, http.MethodPatch, "/tour/update-status/"+strconv.FormatInt(id, 10), body)
}

func (c *Client) ListNotifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	path := "/notifications"
	if unreadOnly {
		path += "?unread=true"
	}
	var out struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) envelope(ctx context.Context, method, path string, body any) error {
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return err
	}
	return checkStatus(out.Status, out.Message)
}

func checkStatus(status, message string) error {
	if status != "success" {
		return &APIError{StatusCode: http.StatusOK, Message: firstNonEmpty(message, "status "+strconv.Quote(status))}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &APIError{StatusCode: resp.StatusCode, Message: firstNonEmpty(e.Message, e.Error)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
