package synckit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/logging"
	"github.com/c0deZ3R0/go-merkle-sync/merkle"
	"github.com/c0deZ3R0/go-merkle-sync/replica"
	"github.com/c0deZ3R0/go-merkle-sync/storage"
)

// aggregatorRecord is the persisted layout of one group.
type aggregatorRecord struct {
	Messages    []replica.Message       `json:"messages"`
	MerkleRoots map[string]*merkle.Trie `json:"merkleRoots"`
}

// Aggregator is the central responder. It keeps one replica state per group,
// merges whatever clients send with the same dedup and last-writer-wins rule
// they use, and returns the messages a client is missing.
type Aggregator struct {
	store   storage.KeyValueStore
	logger  *logging.Logger
	metrics MetricsCollector

	mu     sync.Mutex
	groups map[string]*replica.State
}

// AggregatorOption configures an Aggregator.
type AggregatorOption interface {
	apply(*Aggregator)
}

type aggregatorOptionFunc func(*Aggregator)

func (f aggregatorOptionFunc) apply(a *Aggregator) {
	f(a)
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(logger *logging.Logger) AggregatorOption {
	return aggregatorOptionFunc(func(a *Aggregator) {
		a.logger = logger
	})
}

// WithAggregatorMetrics sets the metrics collector.
func WithAggregatorMetrics(metrics MetricsCollector) AggregatorOption {
	return aggregatorOptionFunc(func(a *Aggregator) {
		a.metrics = metrics
	})
}

// NewAggregator returns an aggregator persisting to store.
func NewAggregator(store storage.KeyValueStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:   store,
		logger:  logging.Discard(),
		metrics: &NoOpMetricsCollector{},
		groups:  make(map[string]*replica.State),
	}
	for _, opt := range opts {
		opt.apply(a)
	}
	a.logger = a.logger.WithComponent(logging.Component("aggregator"))
	return a
}

func groupKey(groupID string) string {
	return "aggregator/" + groupID
}

// Handle answers one sync request. Failures are reported in the response,
// never as a transport error.
func (a *Aggregator) Handle(ctx context.Context, req SyncRequest) SyncResponse {
	start := time.Now()
	resp, err := a.handle(ctx, req)
	a.metrics.RecordSyncDuration("respond", time.Since(start))

	if err != nil {
		a.metrics.RecordSyncError("respond", errorCode(err))
		a.logger.LogError(ctx, err, "sync request failed",
			slog.String("client_id", req.ClientID),
			slog.String("group_id", req.GroupID),
		)
		return Failure(err.Error())
	}

	a.metrics.RecordMessages("respond", len(resp.Data.Messages), len(req.Messages))
	return resp
}

func (a *Aggregator) handle(ctx context.Context, req SyncRequest) (SyncResponse, error) {
	if err := hlc.ValidateNodeID(req.ClientID); err != nil {
		return SyncResponse{}, syncErrors.NewValidationError(syncErrors.OpRespond, fmt.Errorf("client id: %w", err))
	}
	if req.GroupID == "" {
		return SyncResponse{}, syncErrors.NewValidationError(syncErrors.OpRespond, fmt.Errorf("group id is required"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state, err := a.load(ctx, req.GroupID)
	if err != nil {
		return SyncResponse{}, err
	}

	tx := state.Begin()
	added := 0
	for _, m := range req.Messages {
		if m.GroupID == "" {
			m.GroupID = req.GroupID
		}
		if m.GroupID != req.GroupID {
			return SyncResponse{}, syncErrors.NewValidationError(syncErrors.OpRespond,
				fmt.Errorf("message %s belongs to group %q, not %q", m.Timestamp, m.GroupID, req.GroupID))
		}
		outcome, err := tx.Merge(m)
		if err != nil {
			return SyncResponse{}, err
		}
		a.logger.Trace(ctx, "merged message",
			slog.String("client_id", req.ClientID),
			slog.String("timestamp", m.Timestamp),
			slog.String("outcome", outcome.String()),
		)
		if outcome != replica.Duplicate {
			added++
		}
	}
	next := tx.Commit()

	if added > 0 {
		if err := a.save(ctx, req.GroupID, next); err != nil {
			return SyncResponse{}, err
		}
		a.groups[req.GroupID] = next
	}

	var missing []replica.Message
	if drift, diverged := merkle.Difference(next.Trie(), req.Merkle); diverged {
		missing = next.MessagesSince(drift, req.ClientID)
	}

	a.logger.DebugContext(ctx, "sync request handled",
		slog.String("client_id", req.ClientID),
		slog.String("group_id", req.GroupID),
		slog.Int("received", len(req.Messages)),
		slog.Int("added", added),
		slog.Int("returned", len(missing)),
	)
	return OK(missing, next.Trie()), nil
}

// State returns the current state of a group, loading it if needed.
func (a *Aggregator) State(ctx context.Context, groupID string) (*replica.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load(ctx, groupID)
}

func (a *Aggregator) load(ctx context.Context, groupID string) (*replica.State, error) {
	if s, ok := a.groups[groupID]; ok {
		return s, nil
	}

	data, ok, err := a.store.Get(ctx, groupKey(groupID))
	if err != nil {
		return nil, syncErrors.WrapStorage(err, syncErrors.OpLoad, "aggregator")
	}

	s := replica.New(replica.AnyTable())
	if ok {
		var rec aggregatorRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, syncErrors.WrapOpComponent(fmt.Errorf("decode %s: %w", groupKey(groupID), err), syncErrors.OpLoad, "aggregator")
		}
		s, err = replica.Restore(replica.AnyTable(), replica.Snapshot{Log: rec.Messages})
		if err != nil {
			return nil, err
		}
		if root, ok := rec.MerkleRoots[groupID]; ok && root.Hash() != s.Trie().Hash() {
			a.logger.WarnContext(ctx, "persisted merkle root differs from rebuilt trie",
				slog.String("group_id", groupID),
				slog.Uint64("persisted", uint64(root.Hash())),
				slog.Uint64("rebuilt", uint64(s.Trie().Hash())),
			)
		}
	}

	a.groups[groupID] = s
	return s, nil
}

func (a *Aggregator) save(ctx context.Context, groupID string, s *replica.State) error {
	return a.logger.LogOperation(ctx, logging.Operation(syncErrors.OpStore), "", func() error {
		data, err := json.Marshal(aggregatorRecord{
			Messages:    s.Log(),
			MerkleRoots: map[string]*merkle.Trie{groupID: s.Trie()},
		})
		if err != nil {
			return syncErrors.WrapOpComponent(err, syncErrors.OpStore, "aggregator")
		}
		return syncErrors.WrapStorage(a.store.Set(ctx, groupKey(groupID), data), syncErrors.OpStore, "aggregator")
	})
}
