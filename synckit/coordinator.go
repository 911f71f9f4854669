package synckit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/logging"
	"github.com/c0deZ3R0/go-merkle-sync/merkle"
	"github.com/c0deZ3R0/go-merkle-sync/replica"
)

// SyncResult summarizes one call to Sync.
type SyncResult struct {
	// Offline is set when the call was skipped because the replica is
	// offline.
	Offline bool

	// Rounds is the number of request/response exchanges.
	Rounds int

	// Sent and Received count messages on the wire, duplicates included.
	Sent     int
	Received int

	// Applied counts received messages that became a field's value.
	Applied int

	// Skipped counts received messages that were duplicates or lost the
	// last-writer-wins comparison.
	Skipped int

	Duration time.Duration
}

// Coordinator drives the replica side of the protocol: it stamps local
// mutations, keeps the replica state and clock persisted, and reconciles
// with a peer through a Transport.
//
// Operations that change state are serialized; readers (State, Clock,
// Phase) never block on an in-flight sync.
type Coordinator struct {
	groupID   string
	repo      *replica.Repository
	transport Transport
	ids       IDGenerator
	now       func() time.Time
	maxRounds int
	maxDrift  time.Duration
	logger    *logging.Logger
	metrics   MetricsCollector

	// opMu serializes Record, Sync and Reset.
	opMu sync.Mutex

	stateMu sync.RWMutex
	state   *replica.State
	clock   hlc.Clock

	online atomic.Bool
	phase  atomic.Int32

	subMu       sync.RWMutex
	subscribers []func(*SyncResult)
}

// NodeID returns the node id stamped into local timestamps.
func (c *Coordinator) NodeID() string { return c.Clock().NodeID }

// GroupID returns the group this replica belongs to.
func (c *Coordinator) GroupID() string { return c.groupID }

// State returns the current replica state.
func (c *Coordinator) State() *replica.State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Clock returns the current clock.
func (c *Coordinator) Clock() hlc.Clock {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.clock
}

// Phase returns the current step of the sync state machine.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Online reports whether Sync talks to the transport.
func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// SetOnline toggles the online flag. While offline Sync is a no-op and
// Record only writes locally.
func (c *Coordinator) SetOnline(online bool) {
	c.online.Store(online)
	c.logger.Debug("online flag changed", slog.Bool("online", online))
}

// Subscribe registers fn to be called after every completed or failed sync.
// fn runs once the sync has released the coordinator, so it may call back
// into it.
func (c *Coordinator) Subscribe(fn func(*SyncResult)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *Coordinator) notifySubscribers(result *SyncResult) {
	c.subMu.RLock()
	subs := slices.Clone(c.subscribers)
	c.subMu.RUnlock()
	for _, fn := range subs {
		fn(result)
	}
}

func (c *Coordinator) nowMillis() int64 {
	return c.now().UnixMilli()
}

func (c *Coordinator) publish(s *replica.State, clock hlc.Clock) {
	c.stateMu.Lock()
	c.state = s
	c.clock = clock
	c.stateMu.Unlock()
}

func (c *Coordinator) persist(ctx context.Context, s *replica.State, clock hlc.Clock) error {
	return c.logger.LogOperation(ctx, logging.Operation(syncErrors.OpStore), "", func() error {
		return c.repo.Commit(ctx, s, clock)
	})
}

// Record stamps one mutation per field of fields, applies them locally and
// persists the result. An empty row gets a fresh id from the IDGenerator.
// When online the new mutations are then synced; the local write stands
// even if that sync fails, and the sync error is returned alongside the row
// id.
func (c *Coordinator) Record(ctx context.Context, table, row string, fields map[string]any) (string, error) {
	if row == "" {
		row = c.ids.Next()
	}

	msgs, err := c.recordLocal(ctx, table, row, fields)
	if err != nil {
		return "", err
	}

	if c.Online() {
		if _, err := c.sync(ctx, msgs); err != nil {
			return row, err
		}
	}
	return row, nil
}

// Delete records a tombstone for row.
func (c *Coordinator) Delete(ctx context.Context, table, row string) error {
	if row == "" {
		return syncErrors.NewValidationError(syncErrors.OpRecord, errors.New("delete requires a row id"))
	}
	_, err := c.Record(ctx, table, row, map[string]any{replica.TombstoneColumn: true})
	return err
}

func (c *Coordinator) recordLocal(ctx context.Context, table, row string, fields map[string]any) ([]replica.Message, error) {
	if len(fields) == 0 {
		return nil, syncErrors.NewValidationError(syncErrors.OpRecord, errors.New("no fields to record"))
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	state, clock := c.State(), c.Clock()
	if !state.Schema().Recognizes(table) {
		return nil, syncErrors.NewUnknownTableError(table)
	}

	columns := make([]string, 0, len(fields))
	for col := range fields {
		columns = append(columns, col)
	}
	slices.Sort(columns)

	tx := state.Begin()
	msgs := make([]replica.Message, 0, len(columns))
	for _, col := range columns {
		now := c.nowMillis()
		clock = hlc.Send(clock, now)
		if err := c.checkClock(syncErrors.OpRecord, clock, now); err != nil {
			return nil, err
		}

		m := replica.Message{
			GroupID:   c.groupID,
			Table:     table,
			Row:       row,
			Column:    col,
			Value:     fields[col],
			Timestamp: hlc.Pack(clock),
		}
		if _, err := tx.Merge(m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	next := tx.Commit()
	if err := c.persist(ctx, next, clock); err != nil {
		return nil, err
	}
	c.publish(next, clock)

	c.logger.DebugContext(ctx, "recorded mutations",
		slog.String("table", table),
		slog.String("row", row),
		slog.Int("fields", len(msgs)),
		slog.String("clock", hlc.Pack(clock)),
	)
	return msgs, nil
}

func (c *Coordinator) checkClock(op syncErrors.Operation, clock hlc.Clock, now int64) error {
	if err := clock.Validate(); err != nil {
		return syncErrors.NewClockError(op, err)
	}
	if err := hlc.CheckDrift(clock, now, c.maxDrift); err != nil {
		return syncErrors.NewClockError(op, err)
	}
	return nil
}

// Sync reconciles with the peer. It returns immediately with Offline set
// when the replica is offline.
func (c *Coordinator) Sync(ctx context.Context) (*SyncResult, error) {
	return c.sync(ctx, nil)
}

func (c *Coordinator) sync(ctx context.Context, outgoing []replica.Message) (*SyncResult, error) {
	if !c.Online() {
		return &SyncResult{Offline: true}, nil
	}

	result, err := c.syncLocked(ctx, outgoing)
	c.notifySubscribers(result)
	return result, err
}

func (c *Coordinator) syncLocked(ctx context.Context, outgoing []replica.Message) (*SyncResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	start := time.Now()
	result := &SyncResult{}
	logger := c.logger.WithContext(logging.ContextWithNodeID(ctx, c.NodeID()))

	err := c.reconcile(ctx, outgoing, result)
	result.Duration = time.Since(start)
	c.phase.Store(int32(PhaseIdle))

	c.metrics.RecordSyncDuration("sync", result.Duration)
	c.metrics.RecordMessages("sync", result.Sent, result.Received)
	c.metrics.RecordRounds(result.Rounds)
	if err != nil {
		c.metrics.RecordSyncError("sync", errorCode(err))
		logger.LogError(ctx, err, "sync failed",
			slog.Int("rounds", result.Rounds),
			slog.Duration("duration", result.Duration),
		)
	} else {
		logger.InfoContext(ctx, "sync completed",
			slog.Int("rounds", result.Rounds),
			slog.Int("sent", result.Sent),
			slog.Int("received", result.Received),
			slog.Int("applied", result.Applied),
			slog.Duration("duration", result.Duration),
		)
	}
	return result, err
}

// reconcile runs request/response rounds until the tries agree. After each
// round the divergence bucket must move; a repeated bucket or exceeding
// maxRounds ends the sync with a stalled error.
func (c *Coordinator) reconcile(ctx context.Context, outgoing []replica.Message, result *SyncResult) error {
	var (
		since    int64
		hasSince bool
	)

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if round > c.maxRounds {
			return syncErrors.NewSyncStalledError(since, round-1)
		}

		c.phase.Store(int32(PhaseSending))
		req := SyncRequest{
			ClientID: c.NodeID(),
			GroupID:  c.groupID,
			Merkle:   c.State().Trie(),
			Messages: outgoing,
		}
		if req.Messages == nil {
			req.Messages = []replica.Message{}
		}

		c.phase.Store(int32(PhaseAwaitingResponse))
		resp, err := c.transport.Request(ctx, req)
		result.Rounds = round
		result.Sent += len(outgoing)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return syncErrors.NewSyncRejectedError("transport failure", err)
		}
		if resp.Status != StatusOK {
			reason := resp.Reason
			if reason == "" {
				reason = fmt.Sprintf("remote returned status %q", resp.Status)
			}
			return syncErrors.NewSyncRejectedError(reason, nil)
		}
		if resp.Data == nil {
			return syncErrors.NewSyncRejectedError("response carries no data", nil)
		}

		c.phase.Store(int32(PhaseReconciling))
		if err := c.receive(ctx, resp.Data.Messages, result); err != nil {
			return err
		}

		drift, diverged := merkle.Difference(c.State().Trie(), resp.Data.Merkle)
		if !diverged {
			return nil
		}
		if hasSince && drift == since {
			return syncErrors.NewSyncStalledError(drift, round)
		}
		since, hasSince = drift, true

		c.logger.DebugContext(ctx, "tries diverge",
			slog.Int("round", round),
			slog.Time("bucket", time.UnixMilli(drift).UTC()),
		)
		outgoing = c.State().MessagesSince(drift, "")
	}
}

// receive merges a batch from the peer, advances the clock past every
// remote timestamp and persists. A failing message discards the whole
// batch.
func (c *Coordinator) receive(ctx context.Context, msgs []replica.Message, result *SyncResult) error {
	result.Received += len(msgs)
	if len(msgs) == 0 {
		return nil
	}

	state, clock := c.State(), c.Clock()
	tx := state.Begin()
	for _, m := range msgs {
		remote, err := m.Validate()
		if err != nil {
			return err
		}
		now := c.nowMillis()
		if err := hlc.CheckDrift(remote, now, c.maxDrift); err != nil {
			return syncErrors.NewClockError(syncErrors.OpReceive, err)
		}

		outcome, err := tx.Merge(m)
		if err != nil {
			return err
		}
		c.logger.Trace(ctx, "merged message",
			slog.String("timestamp", m.Timestamp),
			slog.String("table", m.Table),
			slog.String("outcome", outcome.String()),
		)
		if outcome == replica.Applied {
			result.Applied++
		} else {
			result.Skipped++
		}

		clock = hlc.Receive(clock, remote, now)
		if err := c.checkClock(syncErrors.OpReceive, clock, now); err != nil {
			return err
		}
	}

	next := tx.Commit()
	if err := c.persist(ctx, next, clock); err != nil {
		return err
	}
	c.publish(next, clock)
	return nil
}

// Reset discards the local state and continues under a fresh node id, so
// the responder hands back everything written under the old one. Logical
// time and counter are kept and later timestamps still sort after earlier
// ones.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	clock := c.Clock()
	previous := clock.NodeID
	clock.NodeID = hlc.NewNodeID()

	s, err := c.repo.Reset(ctx)
	if err != nil {
		return err
	}
	if err := c.repo.SaveClock(ctx, clock); err != nil {
		return err
	}
	c.publish(s, clock)
	c.logger.InfoContext(ctx, "replica reset",
		slog.String("previous_node_id", previous),
		slog.String("node_id", clock.NodeID),
	)
	return nil
}

func errorCode(err error) string {
	var syncErr *syncErrors.SyncError
	if errors.As(err, &syncErr) && syncErr.Code != "" {
		return string(syncErr.Code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED"
	}
	return "UNKNOWN"
}
