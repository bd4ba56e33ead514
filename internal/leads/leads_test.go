package leads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func expiresIn(d time.Duration) *string {
	s := now.Add(d).Format(time.RFC3339)
	return &s
}

func ids(leads []*Lead) []int64 {
	out := make([]int64, 0, len(leads))
	for _, l := range leads {
		out = append(out, l.ID)
	}
	return out
}

func TestPartition(t *testing.T) {
	leads := []*Lead{
		{ID: 1, ActiveLead: true},
		nil,
		{ID: 2},
		{ID: 3, ActiveLead: true},
		{ID: 4, ExpiredStatus: true},
		nil,
	}
	active, fallback := Partition(leads)
	assert.Equal(t, []int64{1, 3}, ids(active))
	assert.Equal(t, []int64{2, 4}, ids(fallback))

	active, fallback = Partition(nil)
	assert.Empty(t, active)
	assert.Empty(t, fallback)
}

func TestPartitionCoversEveryLeadOnce(t *testing.T) {
	var leads []*Lead
	for i := int64(1); i <= 50; i++ {
		leads = append(leads, &Lead{ID: i, ActiveLead: i%3 == 0})
		if i%7 == 0 {
			leads = append(leads, nil)
		}
	}
	active, fallback := Partition(leads)
	seen := map[int64]int{}
	for _, l := range active {
		assert.True(t, l.ActiveLead)
		seen[l.ID]++
	}
	for _, l := range fallback {
		assert.False(t, l.ActiveLead)
		seen[l.ID]++
	}
	assert.Len(t, seen, 50)
	for id, n := range seen {
		assert.Equal(t, 1, n, "lead %d", id)
	}
}

func TestLeadPhase(t *testing.T) {
	assert.Equal(t, PhaseActive, (&Lead{ActiveLead: true}).Phase(now))
	assert.Equal(t, PhaseFallback, (&Lead{TimerExpiresAt: expiresIn(time.Minute)}).Phase(now))
	assert.Equal(t, PhaseExpired, (&Lead{TimerExpiresAt: expiresIn(-time.Minute)}).Phase(now))
	assert.Equal(t, PhaseExpired, (&Lead{TimerExpiresAt: nil}).Phase(now))
	assert.Equal(t, PhaseExpired, (&Lead{ExpiredStatus: true, TimerExpiresAt: expiresIn(time.Minute)}).Phase(now))
}

func TestLeadTourSlot(t *testing.T) {
	got, err := (&Lead{Date: "2026-04-02", Time: "14:30"}).TourSlot(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC), got)

	got, err = (&Lead{Date: "2026-04-02", Time: "2:30 PM"}).TourSlot(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Hour())

	_, err = (&Lead{ID: 9, Date: "soon", Time: "later"}).TourSlot(nil)
	assert.Error(t, err)
}

func TestSeedsSkipNil(t *testing.T) {
	exp := expiresIn(time.Minute)
	seeds := Seeds([]*Lead{{ID: 1, TimerExpiresAt: exp}, nil, {ID: 2}})
	require.Len(t, seeds, 2)
	assert.Equal(t, int64(1), seeds[0].ID)
	assert.Equal(t, exp, seeds[0].ExpiresAt)
	assert.Nil(t, seeds[1].ExpiresAt)
}

func sampleSnapshot() Snapshot {
	agent := int64(9)
	return NewSnapshot([]*Lead{
		{ID: 7, PostID: 70, BuyerID: 700, Date: "2026-04-02", Time: "10:00", Status: "Pending", BookingStatus: "open", TimerExpiresAt: expiresIn(time.Minute)},
		{ID: 8, PostID: 80, BuyerID: 800, AgentID: &agent, Date: "2026-04-03", Time: "11:00", Status: "Pending", BookingStatus: "claimed", ActiveLead: true},
		nil,
	})
}

func TestSnapshotSetStatusTouchesOnlyStatus(t *testing.T) {
	before := sampleSnapshot()
	after := before.SetStatus(7, "Confirmed")

	got, ok := after.Get(7)
	require.True(t, ok)
	want, _ := before.Get(7)
	assert.Equal(t, "Pending", want.Status)

	want.Status = "Confirmed"
	assert.Equal(t, want, got)

	other, _ := after.Get(8)
	orig, _ := before.Get(8)
	assert.Equal(t, orig, other)
}

func TestSnapshotClaimTouchesOnlyActiveLead(t *testing.T) {
	before := sampleSnapshot()
	after := before.Claim(7)

	got, _ := after.Get(7)
	want, _ := before.Get(7)
	assert.False(t, want.ActiveLead)
	assert.Nil(t, got.AgentID)

	want.ActiveLead = true
	assert.Equal(t, want, got)

	active, fallback := after.Partition()
	assert.Equal(t, []int64{7, 8}, ids(active))
	assert.Empty(t, fallback)
}

func TestSnapshotTransitionsOnUnknownLead(t *testing.T) {
	before := sampleSnapshot()
	assert.Equal(t, before, before.Claim(99))
	assert.Equal(t, before, before.SetStatus(99, "Confirmed"))
	assert.Equal(t, before, before.Cancel(7))
	assert.Equal(t, 2, before.Len())
}

func TestSnapshotLeadsAreCopies(t *testing.T) {
	s := sampleSnapshot()
	s.Leads()[0].Status = "Tampered"
	l, _ := s.Get(7)
	assert.Equal(t, "Pending", l.Status)
}
