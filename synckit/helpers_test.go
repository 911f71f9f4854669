package synckit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-merkle-sync/replica"
	"github.com/c0deZ3R0/go-merkle-sync/storage"
	"github.com/c0deZ3R0/go-merkle-sync/storage/memory"
)

// fakeClock is a wall clock that only moves when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(minute int64) *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000 + minute*60_000).UTC()}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// recordingTransport remembers every request and response passing through.
type recordingTransport struct {
	next Transport

	mu        sync.Mutex
	requests  []SyncRequest
	responses []SyncResponse
}

func (r *recordingTransport) Request(ctx context.Context, req SyncRequest) (SyncResponse, error) {
	resp, err := r.next.Request(ctx, req)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	r.responses = append(r.responses, resp)
	return resp, err
}

func (r *recordingTransport) received() []replica.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []replica.Message
	for _, resp := range r.responses {
		if resp.Data != nil {
			out = append(out, resp.Data.Messages...)
		}
	}
	return out
}

type replicaOpts struct {
	store     storage.KeyValueStore
	offline   bool
	maxRounds int
	maxDrift  time.Duration
}

func newReplica(t *testing.T, nodeID string, transport Transport, clock *fakeClock, opts replicaOpts) *Coordinator {
	t.Helper()
	if opts.store == nil {
		opts.store = memory.New()
	}

	b := NewCoordinatorBuilder().
		WithNodeID(nodeID).
		WithGroupID("g1").
		WithTables("todos").
		WithStore(opts.store).
		WithTransport(transport).
		WithClock(clock.Now).
		WithOnline(!opts.offline)
	if opts.maxRounds > 0 {
		b = b.WithMaxRounds(opts.maxRounds)
	}
	if opts.maxDrift != 0 {
		b = b.WithMaxDrift(opts.maxDrift)
	}

	c, err := b.Build(context.Background())
	require.NoError(t, err)
	return c
}
