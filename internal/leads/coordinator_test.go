package leads

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leaddesk/internal/timer"
)

func fixture() []*Lead {
	agent := int64(9)
	return []*Lead{
		{ID: 7, PostID: 70, BuyerID: 700, Date: "2026-04-02", Time: "10:00", Status: "Pending", BookingStatus: "open", TimerExpiresAt: expiresIn(time.Minute)},
		{ID: 8, PostID: 80, BuyerID: 800, AgentID: &agent, Date: "2026-04-03", Time: "11:00", Status: "Pending", BookingStatus: "claimed", ActiveLead: true},
	}
}

func newCoordinator(t *testing.T) (*Coordinator, *MockLeadAPI, *Cache, *recordingNotifier) {
	t.Helper()
	api := new(MockLeadAPI)
	cache := NewCache(api, nil)
	t.Cleanup(cache.Close)

	api.On("ListLeads", mock.Anything).Return(fixture(), nil).Once()
	require.NoError(t, cache.Refetch(context.Background()))

	n := &recordingNotifier{}
	return NewCoordinator(api, cache, n, nil), api, cache, n
}

func TestCoordinatorClaimSuccess(t *testing.T) {
	c, api, cache, n := newCoordinator(t)
	api.On("ClaimLead", mock.Anything, int64(7)).Return(nil).Once()

	var tabs []Tab
	c.OnTabChange(func(tab Tab) { tabs = append(tabs, tab) })

	require.NoError(t, c.Claim(context.Background(), 7))

	active, fallback := cache.Snapshot().Partition()
	assert.Contains(t, ids(active), int64(7))
	assert.NotContains(t, ids(fallback), int64(7))
	assert.Equal(t, TabActive, c.Tab())
	assert.Equal(t, []Tab{TabActive}, tabs)
	assert.Equal(t, []string{"Lead claimed successfully"}, n.successes)
	assert.Empty(t, n.failures)
	assert.Zero(t, c.ClaimingID())

	// no refetch: the list call from setup is the only one
	api.AssertNumberOfCalls(t, "ListLeads", 1)
	api.AssertExpectations(t)
}

func TestCoordinatorClaimFailureLeavesStateAlone(t *testing.T) {
	c, api, cache, n := newCoordinator(t)
	before := cache.Snapshot()
	api.On("ClaimLead", mock.Anything, int64(7)).Return(errors.New("409 conflict")).Once()

	err := c.Claim(context.Background(), 7)
	require.Error(t, err)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "claim", opErr.Op)
	assert.Equal(t, int64(7), opErr.LeadID)
	assert.Equal(t, "failed to claim lead", opErr.Message())

	assert.Equal(t, before, cache.Snapshot())
	assert.Equal(t, TabFallback, c.Tab())
	assert.Equal(t, []string{"failed to claim lead"}, n.failures)
	assert.Empty(t, n.successes)
	assert.Zero(t, c.ClaimingID())
}

func TestCoordinatorClaimingMarker(t *testing.T) {
	c, api, _, _ := newCoordinator(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	api.On("ClaimLead", mock.Anything, int64(7)).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil).Once()

	done := make(chan error, 1)
	go func() { done <- c.Claim(context.Background(), 7) }()

	<-entered
	assert.Equal(t, int64(7), c.ClaimingID())
	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, c.ClaimingID())
}

func TestCoordinatorCancelRefetches(t *testing.T) {
	c, api, cache, n := newCoordinator(t)
	api.On("RejectLead", mock.Anything, int64(7)).Return(nil).Once()
	api.On("ListLeads", mock.Anything).Return(fixture()[1:], nil).Once()

	require.NoError(t, c.Cancel(context.Background(), 7))

	require.Eventually(t, func() bool {
		_, ok := cache.Snapshot().Get(7)
		return !ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Lead cancelled"}, n.successes)
	api.AssertExpectations(t)
}

func TestCoordinatorCancelFailure(t *testing.T) {
	c, api, cache, n := newCoordinator(t)
	before := cache.Snapshot()
	api.On("RejectLead", mock.Anything, int64(7)).Return(errors.New("boom")).Once()

	err := c.Cancel(context.Background(), 7)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "failed to cancel lead", opErr.Message())
	assert.Equal(t, before, cache.Snapshot())
	assert.Equal(t, []string{"failed to cancel lead"}, n.failures)

	time.Sleep(10 * time.Millisecond)
	api.AssertNumberOfCalls(t, "ListLeads", 1)
}

func TestCoordinatorUpdateStatus(t *testing.T) {
	c, api, cache, n := newCoordinator(t)
	before, _ := cache.Snapshot().Get(7)
	api.On("UpdateStatus", mock.Anything, int64(7), "Confirmed").Return(nil).Once()

	require.NoError(t, c.UpdateStatus(context.Background(), 7, "Confirmed"))

	after, _ := cache.Snapshot().Get(7)
	assert.Equal(t, "Confirmed", after.Status)
	before.Status = "Confirmed"
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"Lead status updated"}, n.successes)
}

func TestCoordinatorUpdateStatusFailure(t *testing.T) {
	c, api, cache, n := newCoordinator(t)
	before := cache.Snapshot()
	api.On("UpdateStatus", mock.Anything, int64(7), "Confirmed").Return(errors.New("offline")).Once()

	err := c.UpdateStatus(context.Background(), 7, "Confirmed")
	require.Error(t, err)
	assert.Equal(t, before, cache.Snapshot())
	assert.Equal(t, []string{"failed to update status of lead"}, n.failures)
}

func TestCoordinatorVisible(t *testing.T) {
	c, _, _, _ := newCoordinator(t)
	assert.Equal(t, []int64{7}, ids(c.Visible()))
	c.SetTab(TabActive)
	assert.Equal(t, []int64{8}, ids(c.Visible()))
}

func TestCacheInvalidateCoalesces(t *testing.T) {
	f := &staticFetcher{leads: fixture(), gate: make(chan struct{})}
	cache := NewCache(f, nil)
	defer cache.Close()

	var notified atomic.Int32
	unsubscribe := cache.Subscribe(func(Snapshot) { notified.Add(1) })
	defer unsubscribe()

	cache.Invalidate()
	cache.Invalidate()
	cache.Invalidate()

	// first refetch runs, the other two collapse into one more
	f.gate <- struct{}{}
	f.gate <- struct{}{}
	require.Eventually(t, func() bool { return notified.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, f.Calls())
	assert.Equal(t, 2, cache.Snapshot().Len())
	assert.Equal(t, uint64(2), cache.Snapshot().Version())
}

func TestCacheUnsubscribe(t *testing.T) {
	f := &staticFetcher{leads: fixture()}
	cache := NewCache(f, nil)
	defer cache.Close()

	var notified atomic.Int32
	unsubscribe := cache.Subscribe(func(Snapshot) { notified.Add(1) })
	require.NoError(t, cache.Refetch(context.Background()))
	unsubscribe()
	require.NoError(t, cache.Refetch(context.Background()))
	assert.Equal(t, int32(1), notified.Load())
}

func TestCacheCloseStopsInvalidate(t *testing.T) {
	f := &staticFetcher{leads: fixture()}
	cache := NewCache(f, nil)
	cache.Close()
	cache.Invalidate()
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, f.Calls())
}

// An expiring countdown drives exactly one refetch through the cache.
func TestExpiryInvalidatesCacheOnce(t *testing.T) {
	f := &staticFetcher{leads: []*Lead{{ID: 42, TimerExpiresAt: expiresIn(90 * time.Second)}}}
	cache := NewCache(f, nil)
	defer cache.Close()
	require.NoError(t, cache.Refetch(context.Background()))

	clock := timer.NewFakeClock(now)
	arena := timer.NewArena(func(int64) { cache.Invalidate() }, timer.WithClock(clock))
	defer arena.StopAll()

	_, fallback := cache.Snapshot().Partition()
	arena.Sync(string(TabFallback), Seeds(fallback))

	for i := 0; i < 90; i++ {
		clock.Advance(time.Second)
	}
	require.Eventually(t, func() bool { return f.Calls() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return arena.Running() == 0 }, time.Second, time.Millisecond)

	left, _ := arena.Remaining(42)
	assert.Equal(t, 0, left)

	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, f.Calls())
}

func TestCacheDeliversSnapshotsInVersionOrder(t *testing.T) {
	f := &staticFetcher{leads: fixture()}
	cache := NewCache(f, nil)
	defer cache.Close()
	require.NoError(t, cache.Refetch(context.Background()))

	var (
		mu      sync.Mutex
		seen    []uint64
		entered = make(chan struct{})
		release = make(chan struct{})
		first   = true
	)
	cache.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.Version())
		block := first
		first = false
		mu.Unlock()
		if block {
			close(entered)
			<-release
		}
	})

	claimed := make(chan struct{})
	go func() {
		cache.Apply(ClaimTransition(7))
		close(claimed)
	}()
	<-entered

	statusSet := make(chan struct{})
	go func() {
		cache.Apply(SetStatusTransition(7, "Confirmed"))
		close(statusSet)
	}()
	require.Eventually(t, func() bool { return cache.Snapshot().Version() == 3 }, time.Second, time.Millisecond)

	close(release)
	<-claimed
	<-statusSet

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
	assert.Equal(t, cache.Snapshot().Version(), seen[len(seen)-1])

	last, _ := cache.Snapshot().Get(7)
	assert.True(t, last.ActiveLead)
	assert.Equal(t, "Confirmed", last.Status)
}
