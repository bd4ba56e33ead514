package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leaddesk/internal/domain"
	"leaddesk/internal/events"
	"leaddesk/internal/protocol"
)

// Notifier delivers a user notification.
type Notifier interface {
	Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, message string, metadata any) (*domain.Notification, error)
}

// ExpiryScheduler arranges for a lead's expiry to be checked at a given time.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, leadID int64, at time.Time) error
}

// Viewer is the authenticated caller of a lead operation.
type Viewer struct {
	ID   int64
	Role domain.Role
}

type TourRequestInput struct {
	PostID int64
	Date   string
	Time   string
}

// LeadService owns the lead lifecycle: request, claim, reject, status change
// and expiry of the claim window.
type LeadService struct {
	leads     domain.LeadRepository
	notifier  Notifier
	bus       events.Bus
	scheduler ExpiryScheduler
	window    time.Duration
	now       func() time.Time
}

func NewLeadService(leads domain.LeadRepository, notifier Notifier, bus events.Bus, window time.Duration) *LeadService {
	return &LeadService{
		leads:    leads,
		notifier: notifier,
		bus:      bus,
		window:   window,
		now:      time.Now,
	}
}

// SetScheduler enables per-lead expiry tasks. Without one, expiry relies on
// the sweeper alone.
func (s *LeadService) SetScheduler(sch ExpiryScheduler) { s.scheduler = sch }

// SetClock replaces the time source.
func (s *LeadService) SetClock(now func() time.Time) { s.now = now }

// List returns the leads visible to the viewer with ActiveLead computed for
// that viewer.
func (s *LeadService) List(ctx context.Context, v Viewer) ([]*domain.Lead, error) {
	var (
		leads []*domain.Lead
		err   error
	)
	if v.Role == domain.RoleAgent {
		leads, err = s.leads.ListForAgent(ctx, v.ID, s.now())
	} else {
		leads, err = s.leads.ListForBuyer(ctx, v.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	for _, l := range leads {
		l.ActiveLead = l.HeldBy(v.ID)
	}
	if leads == nil {
		leads = []*domain.Lead{}
	}
	return leads, nil
}

func (s *LeadService) Request(ctx context.Context, buyerID int64, in TourRequestInput) (*domain.Lead, error) {
	if in.PostID <= 0 || strings.TrimSpace(in.Date) == "" || strings.TrimSpace(in.Time) == "" {
		return nil, fmt.Errorf("%w: postId, date and time are required", domain.ErrInvalidInput)
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.window)
	l := &domain.Lead{
		PostID:         in.PostID,
		BuyerID:        buyerID,
		Date:           strings.TrimSpace(in.Date),
		Time:           strings.TrimSpace(in.Time),
		Status:         domain.LeadStatusPending,
		BookingStatus:  domain.BookingStatusOpen,
		TimerExpiresAt: &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.leads.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	s.schedule(ctx, l.ID, expiresAt)
	s.broadcast(ctx, l.ID, protocol.LeadRequested)
	return l, nil
}

// Claim assigns the lead to the agent. Exactly one of several concurrent
// claims succeeds; the rest get domain.ErrClaimConflict.
func (s *LeadService) Claim(ctx context.Context, agentID, leadID int64) error {
	now := s.now()
	l, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	if !l.Claimable(now) {
		return domain.ErrClaimConflict
	}
	if err := s.leads.Claim(ctx, leadID, agentID, now); err != nil {
		return err
	}
	s.broadcast(ctx, leadID, protocol.LeadClaimed)
	s.notifyBuyer(ctx, leadID, "Tour claimed", "An agent has claimed your tour request.")
	return nil
}

// Reject hides the lead from the agent. A lead the agent was holding goes
// back to the pool with a fresh claim window.
func (s *LeadService) Reject(ctx context.Context, agentID, leadID int64) error {
	l, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	if err := s.leads.RecordRejection(ctx, leadID, agentID); err != nil {
		return err
	}
	if !l.HeldBy(agentID) {
		s.broadcast(ctx, leadID, protocol.LeadRejected)
		return nil
	}

	expiresAt := s.now().UTC().Add(s.window)
	if err := s.leads.Release(ctx, leadID, agentID, expiresAt); err != nil {
		return err
	}
	s.schedule(ctx, leadID, expiresAt)
	s.broadcast(ctx, leadID, protocol.LeadReleased)
	s.notifyBuyer(ctx, leadID, "Tour released", "Your tour request is open to other agents again.")
	return nil
}

// UpdateStatus changes the workflow label of a lead the agent holds.
func (s *LeadService) UpdateStatus(ctx context.Context, agentID, leadID int64, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return fmt.Errorf("%w: status is required", domain.ErrInvalidInput)
	}
	if err := s.leads.UpdateStatus(ctx, leadID, agentID, status); err != nil {
		return err
	}
	s.broadcast(ctx, leadID, protocol.LeadStatus)
	s.notifyBuyer(ctx, leadID, "Tour updated", fmt.Sprintf("Your tour is now %s.", status))
	return nil
}

// ExpireDue expires every lapsed unclaimed lead and returns how many it
// expired.
func (s *LeadService) ExpireDue(ctx context.Context) (int, error) {
	expired, err := s.leads.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire due leads: %w", err)
	}
	for _, l := range expired {
		s.afterExpire(ctx, l)
	}
	return len(expired), nil
}

// Expire expires a single lead if its window lapsed while unclaimed. It is a
// no-op otherwise, so a late or repeated call is harmless.
func (s *LeadService) Expire(ctx context.Context, leadID int64) error {
	l, err := s.leads.Expire(ctx, leadID, s.now())
	if err != nil {
		return fmt.Errorf("expire lead %d: %w", leadID, err)
	}
	if l != nil {
		s.afterExpire(ctx, l)
	}
	return nil
}

func (s *LeadService) afterExpire(ctx context.Context, l *domain.Lead) {
	s.broadcast(ctx, l.ID, protocol.LeadExpired)
	s.notify(ctx, l, "Tour request expired", "No agent claimed your tour request in time.")
}

func (s *LeadService) schedule(ctx context.Context, leadID int64, at time.Time) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleExpiry(ctx, leadID, at); err != nil {
		slog.Warn("schedule lead expiry failed; sweeper will catch it", "lead_id", leadID, "error", err)
	}
}

func (s *LeadService) broadcast(ctx context.Context, leadID int64, action string) {
	d, err := events.ToAgents(protocol.LeadUpdated{LeadID: leadID, Action: action})
	if err == nil {
		err = s.bus.Publish(ctx, d)
	}
	if err != nil {
		slog.Warn("publish lead update failed", "lead_id", leadID, "action", action, "error", err)
	}
}

func (s *LeadService) notifyBuyer(ctx context.Context, leadID int64, title, message string) {
	l, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("load lead for notification failed", "lead_id", leadID, "error", err)
		}
		return
	}
	s.notify(ctx, l, title, message)
}

func (s *LeadService) notify(ctx context.Context, l *domain.Lead, title, message string) {
	if s.notifier == nil {
		return
	}
	meta := map[string]any{"leadId": l.ID, "status": l.Status, "bookingStatus": l.BookingStatus}
	if _, err := s.notifier.Notify(ctx, l.BuyerID, domain.NotificationSystem, title, message, meta); err != nil {
		slog.Warn("notify buyer failed", "lead_id", l.ID, "buyer_id", l.BuyerID, "error", err)
	}
}
