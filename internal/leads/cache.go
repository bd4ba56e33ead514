package leads

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Fetcher loads the lead collection for the current agent.
type Fetcher interface {
	ListLeads(ctx context.Context) ([]*Lead, error)
}

// Cache holds the latest lead snapshot. Readers get an immutable value;
// writes go through Refetch or Apply.
type Cache struct {
	fetch   Fetcher
	log     *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	snap    Snapshot
	subs    map[int]func(Snapshot)
	nextSub int

	// notifyMu orders deliveries; delivered is the last version handed out.
	notifyMu  sync.Mutex
	delivered uint64

	refetchMu sync.Mutex
	inflight  bool
	pending   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCache(fetch Fetcher, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		fetch:   fetch,
		log:     log,
		timeout: 15 * time.Second,
		subs:    make(map[int]func(Snapshot)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Snapshot returns the current snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe registers fn to receive new snapshots. Deliveries are
// serialized and never go back in version: when changes overlap, a
// subscriber may skip straight to the newest snapshot. fn must not call Apply
// or Refetch itself. The returned func removes it.
func (c *Cache) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Refetch loads the collection and replaces the snapshot with it.
func (c *Cache) Refetch(ctx context.Context) error {
	leads, err := c.fetch.ListLeads(ctx)
	if err != nil {
		return err
	}
	fresh := NewSnapshot(leads)
	c.replace(func(Snapshot) Snapshot { return fresh })
	return nil
}

// Apply runs t against the current snapshot and publishes the result.
func (c *Cache) Apply(t Transition) Snapshot {
	return c.replace(t)
}

func (c *Cache) replace(t Transition) Snapshot {
	c.mu.Lock()
	next := t(c.snap)
	next.version = c.snap.version + 1
	c.snap = next
	c.mu.Unlock()

	c.notify()
	return next
}

// notify hands the current snapshot to subscribers unless a newer or equal
// version was already delivered.
func (c *Cache) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.RLock()
	latest := c.snap
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	if latest.version <= c.delivered {
		return
	}
	c.delivered = latest.version
	for _, fn := range subs {
		fn(latest)
	}
}

// Invalidate marks the snapshot stale and refetches in the background.
// Invalidations arriving while a refetch is running collapse into one more
// refetch after it.
func (c *Cache) Invalidate() {
	c.refetchMu.Lock()
	defer c.refetchMu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	if c.inflight {
		c.pending = true
		return
	}
	c.inflight = true
	c.wg.Add(1)
	go c.refetchLoop()
}

func (c *Cache) refetchLoop() {
	defer c.wg.Done()
	for {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		if err := c.Refetch(ctx); err != nil && c.ctx.Err() == nil {
			c.log.Warn("lead refetch failed", "error", err)
		}
		cancel()

		c.refetchMu.Lock()
		if !c.pending || c.ctx.Err() != nil {
			c.inflight = false
			c.refetchMu.Unlock()
			return
		}
		c.pending = false
		c.refetchMu.Unlock()
	}
}

// Close stops background refetches and waits for a running one to finish.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}
