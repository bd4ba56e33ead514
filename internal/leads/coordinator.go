package leads

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// LeadAPI is the remote lead store.
type LeadAPI interface {
	Fetcher
	ClaimLead(ctx context.Context, id int64) error
	RejectLead(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// Notifier shows operation outcomes to the agent.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
}

// Tab selects which pool the agent is looking at.
type Tab string

const (
	TabActive   Tab = "active"
	TabFallback Tab = "fallback"
)

// OpError is returned when a lead operation fails on the server.
type OpError struct {
	Op     string
	LeadID int64
	Err    error
}

// Message is the text shown to the agent. It does not distinguish causes: a
// claim lost to another agent reads the same as a network failure.
func (e *OpError) Message() string { return "failed to " + e.Op + " lead" }

func (e *OpError) Error() string {
	return fmt.Sprintf("failed to %s lead %d: %v", e.Op, e.LeadID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Coordinator is the only path through which leads change. Local state is
// patched after the server accepts a change, never before, and a failure
// leaves it as it was. Nothing is retried.
type Coordinator struct {
	api      LeadAPI
	cache    *Cache
	notifier Notifier
	log      *slog.Logger

	mu       sync.Mutex
	claiming int64
	tab      Tab
	onTab    []func(Tab)
}

func NewCoordinator(api LeadAPI, cache *Cache, notifier Notifier, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		api:      api,
		cache:    cache,
		notifier: notifier,
		log:      log,
		tab:      TabFallback,
	}
}

// ClaimingID returns the lead with a claim in flight, or 0. Only the latest
// claim is tracked; it does not stop a second claim from being sent.
func (c *Coordinator) ClaimingID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claiming
}

func (c *Coordinator) Tab() Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab
}

// SetTab switches the visible pool and tells tab listeners.
func (c *Coordinator) SetTab(t Tab) {
	c.mu.Lock()
	c.tab = t
	listeners := append([]func(Tab){}, c.onTab...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}

// OnTabChange registers fn to run after every SetTab.
func (c *Coordinator) OnTabChange(fn func(Tab)) {
	c.mu.Lock()
	c.onTab = append(c.onTab, fn)
	c.mu.Unlock()
}

// Visible returns the leads of the current tab's pool.
func (c *Coordinator) Visible() []*Lead {
	active, fallback := c.cache.Snapshot().Partition()
	if c.Tab() == TabActive {
		return active
	}
	return fallback
}

// Claim asks the server for the lead. On success the lead moves to the
// active pool locally and the view switches to it.
func (c *Coordinator) Claim(ctx context.Context, id int64) error {
	c.mu.Lock()
	c.claiming = id
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.claiming == id {
			c.claiming = 0
		}
		c.mu.Unlock()
	}()

	if err := c.api.ClaimLead(ctx, id); err != nil {
		return c.fail("claim", id, err)
	}
	c.cache.Apply(ClaimTransition(id))
	c.notifier.Success("Lead claimed successfully")
	c.SetTab(TabActive)
	return nil
}

// Cancel rejects the lead and refetches the collection.
func (c *Coordinator) Cancel(ctx context.Context, id int64) error {
	if err := c.api.RejectLead(ctx, id); err != nil {
		return c.fail("cancel", id, err)
	}
	c.cache.Apply(CancelTransition(id))
	c.cache.Invalidate()
	c.notifier.Success("Lead cancelled")
	return nil
}

// UpdateStatus sets the lead's workflow status. Only Status is patched
// locally.
func (c *Coordinator) UpdateStatus(ctx context.Context, id int64, status string) error {
	if err := c.api.UpdateStatus(ctx, id, status); err != nil {
		return c.fail("update status of", id, err)
	}
	c.cache.Apply(SetStatusTransition(id, status))
	c.notifier.Success("Lead status updated")
	return nil
}

func (c *Coordinator) fail(op string, id int64, err error) error {
	opErr := &OpError{Op: op, LeadID: id, Err: err}
	c.log.Warn("lead operation failed", "op", op, "lead_id", id, "error", err)
	c.notifier.Failure(opErr.Message())
	return opErr
}
