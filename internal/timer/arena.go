package timer

import (
	"log/slog"
	"sync"
	"time"
)

// Seed is what the arena needs from a lead to start its countdown.
type Seed struct {
	ID        int64
	ExpiresAt *string
}

// Invalidator is called once when a countdown reaches zero. It runs on the
// ticker goroutine and must not call back into the arena synchronously.
type Invalidator func(leadID int64)

// Arena runs one ticker per visible lead. Every tick recomputes the remaining
// time from the absolute expiry, so a late or dropped tick never drifts the
// countdown. A countdown that reaches zero stops for good.
type Arena struct {
	clock      Clock
	period     time.Duration
	invalidate Invalidator
	log        *slog.Logger

	mu      sync.Mutex
	entries map[int64]*entry
	tab     string
	count   int
	synced  bool
}

type entry struct {
	expiry    time.Time
	remaining int
	stop      chan struct{}
	done      chan struct{}
}

// Option configures an Arena.
type Option func(*Arena)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(a *Arena) { a.clock = c } }

// WithPeriod changes the tick period from one second.
func WithPeriod(d time.Duration) Option { return func(a *Arena) { a.period = d } }

// WithLogger sets the logger used for countdown events.
func WithLogger(l *slog.Logger) Option { return func(a *Arena) { a.log = l } }

func NewArena(invalidate Invalidator, opts ...Option) *Arena {
	a := &Arena{
		clock:      RealClock{},
		period:     time.Second,
		invalidate: invalidate,
		log:        slog.Default(),
		entries:    make(map[int64]*entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sync reconciles the arena with the leads visible in tab. A different tab or
// a different number of leads stops every countdown and reseeds them all.
// Otherwise only leads without a countdown get one; running countdowns are
// left alone, and countdowns for leads no longer visible are stopped.
func (a *Arena) Sync(tab string, seeds []Seed) {
	a.mu.Lock()
	var stopped []*entry
	if !a.synced || tab != a.tab || len(seeds) != a.count {
		for id, e := range a.entries {
			stopped = append(stopped, e)
			delete(a.entries, id)
		}
	} else {
		visible := make(map[int64]struct{}, len(seeds))
		for _, s := range seeds {
			visible[s.ID] = struct{}{}
		}
		for id, e := range a.entries {
			if _, ok := visible[id]; !ok {
				stopped = append(stopped, e)
				delete(a.entries, id)
			}
		}
	}
	a.synced = true
	a.tab = tab
	a.count = len(seeds)

	for _, s := range seeds {
		if _, ok := a.entries[s.ID]; ok {
			continue
		}
		a.seedLocked(s)
	}
	a.mu.Unlock()

	halt(stopped)
}

func (a *Arena) seedLocked(s Seed) {
	expiry, valid := ParseExpiry(s.ExpiresAt)
	e := &entry{
		expiry: expiry,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if valid {
		e.remaining = secondsUntil(expiry, a.clock.Now())
	}
	a.entries[s.ID] = e

	// Nothing to count down: the lead is shown at zero and the server decides
	// what happens to it.
	if e.remaining == 0 {
		close(e.done)
		return
	}
	go a.run(s.ID, e, a.clock.NewTicker(a.period))
}

func (a *Arena) run(id int64, e *entry, t Ticker) {
	defer close(e.done)
	defer t.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-t.C():
			select {
			case <-e.stop:
				return
			default:
			}

			a.mu.Lock()
			e.remaining = secondsUntil(e.expiry, a.clock.Now())
			left := e.remaining
			a.mu.Unlock()

			if left > 0 {
				continue
			}
			a.log.Debug("lead countdown finished", "lead_id", id)
			if a.invalidate != nil {
				a.invalidate(id)
			}
			return
		}
	}
}

// Stop ends the countdown for id and forgets it.
func (a *Arena) Stop(id int64) {
	a.mu.Lock()
	e, ok := a.entries[id]
	if ok {
		delete(a.entries, id)
	}
	a.mu.Unlock()
	if ok {
		halt([]*entry{e})
	}
}

// StopAll ends every countdown and waits for the tickers to exit. The next
// Sync reseeds from scratch.
func (a *Arena) StopAll() {
	a.mu.Lock()
	stopped := make([]*entry, 0, len(a.entries))
	for id, e := range a.entries {
		stopped = append(stopped, e)
		delete(a.entries, id)
	}
	a.synced = false
	a.mu.Unlock()

	halt(stopped)
}

// Remaining reports the seconds left for id and whether it has a countdown.
func (a *Arena) Remaining(id int64) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[id]
	if !ok {
		return 0, false
	}
	return e.remaining, true
}

// Snapshot copies the current lead id to seconds mapping.
func (a *Arena) Snapshot() map[int64]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int64]int, len(a.entries))
	for id, e := range a.entries {
		out[id] = e.remaining
	}
	return out
}

// Running reports how many countdowns still have a live ticker.
func (a *Arena) Running() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		select {
		case <-e.done:
		default:
			n++
		}
	}
	return n
}

func halt(entries []*entry) {
	for _, e := range entries {
		select {
		case <-e.stop:
		default:
			close(e.stop)
		}
	}
	for _, e := range entries {
		<-e.done
	}
}
