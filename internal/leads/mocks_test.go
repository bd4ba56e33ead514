package leads

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type MockLeadAPI struct {
	mock.Mock
}

func (m *MockLeadAPI) ListLeads(ctx context.Context) ([]*Lead, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Lead), args.Error(1)
}

func (m *MockLeadAPI) ClaimLead(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLeadAPI) RejectLead(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLeadAPI) UpdateStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Failure(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, msg)
}

// staticFetcher serves a fixed collection and counts calls.
type staticFetcher struct {
	mu    sync.Mutex
	leads []*Lead
	calls int
	gate  chan struct{}
}

func (f *staticFetcher) ListLeads(ctx context.Context) ([]*Lead, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.leads, nil
}

func (f *staticFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
