// Package worker runs periodic background jobs inside the server process.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Expirer expires lapsed leads and reports how many it expired.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Sweeper calls ExpireDue on a fixed interval. It catches leads whose expiry
// task was never scheduled or was lost.
type Sweeper struct {
	leads    Expirer
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(leads Expirer, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{leads: leads, interval: interval, log: log}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.leads.ExpireDue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("lead sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		s.log.Info("expired lapsed leads", "count", n)
	}
}
