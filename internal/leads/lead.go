// Package leads holds the agent-side view of tour leads: the pool partition,
// immutable snapshots of the fetched collection and the coordinator through
// which every claim, cancel and status change goes.
package leads

import (
	"fmt"
	"strings"
	"time"

	"leaddesk/internal/timer"
)

// Lead is a tour request as served by GET /tour/leads.
type Lead struct {
	ID             int64     `json:"id"`
	PostID         int64     `json:"postId"`
	BuyerID        int64     `json:"buyerId"`
	AgentID        *int64    `json:"agentId"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Status         string    `json:"status"`
	BookingStatus  string    `json:"bookingStatus"`
	ExpiredStatus  bool      `json:"expiredStatus"`
	TimerExpiresAt *string   `json:"timerExpiresAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	ActiveLead     bool      `json:"activeLead"`
}

// Phase is where a lead sits from the viewing agent's point of view.
type Phase string

const (
	PhaseActive   Phase = "active"
	PhaseFallback Phase = "fallback"
	PhaseExpired  Phase = "expired"
)

var slotTimeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm"}

// TourSlot combines the requested date and time into one instant in loc.
func (l *Lead) TourSlot(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date := strings.TrimSpace(l.Date)
	clock := strings.TrimSpace(l.Time)
	for _, layout := range slotTimeLayouts {
		if t, err := time.ParseInLocation("2006-01-02 "+layout, date+" "+clock, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("lead %d: unparsable tour slot %q %q", l.ID, l.Date, l.Time)
}

// Phase classifies the lead at now.
func (l *Lead) Phase(now time.Time) Phase {
	switch {
	case l.ActiveLead:
		return PhaseActive
	case l.ExpiredStatus, timer.CalculateRemainingTime(l.TimerExpiresAt, now) == 0:
		return PhaseExpired
	default:
		return PhaseFallback
	}
}

// Partition splits leads into the viewer's active pool and the fallback pool.
// Nil entries land in neither.
func Partition(leads []*Lead) (active, fallback []*Lead) {
	for _, l := range leads {
		if l == nil {
			continue
		}
		if l.ActiveLead {
			active = append(active, l)
		} else {
			fallback = append(fallback, l)
		}
	}
	return active, fallback
}

// Seeds converts leads into timer seeds.
func Seeds(leads []*Lead) []timer.Seed {
	seeds := make([]timer.Seed, 0, len(leads))
	for _, l := range leads {
		if l == nil {
			continue
		}
		seeds = append(seeds, timer.Seed{ID: l.ID, ExpiresAt: l.TimerExpiresAt})
	}
	return seeds
}
