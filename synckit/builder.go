package synckit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/logging"
	"github.com/c0deZ3R0/go-merkle-sync/replica"
	"github.com/c0deZ3R0/go-merkle-sync/storage"
)

// Defaults applied by NewCoordinatorBuilder.
const (
	DefaultGroupID   = "default"
	DefaultMaxRounds = 32
)

// DefaultReplicaID keys the persisted state when neither a replica id nor a
// node id is configured.
const DefaultReplicaID = "local"

// CoordinatorBuilder provides a fluent interface for constructing a
// Coordinator.
type CoordinatorBuilder struct {
	nodeID    string
	groupID   string
	replicaID string
	schema    replica.Schema
	schemaSet bool
	store     storage.KeyValueStore
	transport Transport
	ids       IDGenerator
	now       func() time.Time
	maxRounds int
	maxDrift  time.Duration
	online    bool
	logger    *logging.Logger
	metrics   MetricsCollector
}

// NewCoordinatorBuilder creates a new builder with default options.
func NewCoordinatorBuilder() *CoordinatorBuilder {
	return &CoordinatorBuilder{
		groupID:   DefaultGroupID,
		ids:       UUIDGenerator{},
		now:       time.Now,
		maxRounds: DefaultMaxRounds,
		online:    true,
	}
}

// WithNodeID sets the node id stamped into timestamps. When none is set the
// id stored with the persisted clock is reused, or a random one generated.
func (b *CoordinatorBuilder) WithNodeID(id string) *CoordinatorBuilder {
	b.nodeID = id
	return b
}

// WithGroupID sets the group the replica syncs.
func (b *CoordinatorBuilder) WithGroupID(id string) *CoordinatorBuilder {
	b.groupID = id
	return b
}

// WithReplicaID sets the storage key prefix of the replica. Defaults to the
// node id, or DefaultReplicaID when no node id is set either.
func (b *CoordinatorBuilder) WithReplicaID(id string) *CoordinatorBuilder {
	b.replicaID = id
	return b
}

// WithTables restricts the replica to the named tables.
func (b *CoordinatorBuilder) WithTables(names ...string) *CoordinatorBuilder {
	b.schema = replica.Tables(names...)
	b.schemaSet = true
	return b
}

// WithSchema sets the recognized tables.
func (b *CoordinatorBuilder) WithSchema(schema replica.Schema) *CoordinatorBuilder {
	b.schema = schema
	b.schemaSet = true
	return b
}

// WithStore sets the KeyValueStore the replica persists to.
func (b *CoordinatorBuilder) WithStore(store storage.KeyValueStore) *CoordinatorBuilder {
	b.store = store
	return b
}

// WithTransport sets the Transport used to reach the peer.
func (b *CoordinatorBuilder) WithTransport(transport Transport) *CoordinatorBuilder {
	b.transport = transport
	return b
}

// WithIDGenerator sets the generator for new row ids.
func (b *CoordinatorBuilder) WithIDGenerator(ids IDGenerator) *CoordinatorBuilder {
	b.ids = ids
	return b
}

// WithClock sets the wall clock. Tests use it to pin time.
func (b *CoordinatorBuilder) WithClock(now func() time.Time) *CoordinatorBuilder {
	b.now = now
	return b
}

// WithMaxRounds caps the number of rounds of a single sync.
func (b *CoordinatorBuilder) WithMaxRounds(n int) *CoordinatorBuilder {
	b.maxRounds = n
	return b
}

// WithMaxDrift sets how far ahead of local wall time a remote clock may be.
// The check is off unless d is positive.
func (b *CoordinatorBuilder) WithMaxDrift(d time.Duration) *CoordinatorBuilder {
	b.maxDrift = d
	return b
}

// WithOnline sets the initial online flag. Coordinators start online.
func (b *CoordinatorBuilder) WithOnline(online bool) *CoordinatorBuilder {
	b.online = online
	return b
}

// WithLogger sets the logger.
func (b *CoordinatorBuilder) WithLogger(logger *logging.Logger) *CoordinatorBuilder {
	b.logger = logger
	return b
}

// WithMetrics sets the metrics collector.
func (b *CoordinatorBuilder) WithMetrics(metrics MetricsCollector) *CoordinatorBuilder {
	b.metrics = metrics
	return b
}

// Build validates the options, loads the persisted state and clock and
// returns the Coordinator.
func (b *CoordinatorBuilder) Build(ctx context.Context) (*Coordinator, error) {
	if b.store == nil {
		return nil, fmt.Errorf("KeyValueStore is required")
	}
	if b.transport == nil {
		return nil, fmt.Errorf("Transport is required")
	}
	if !b.schemaSet {
		return nil, fmt.Errorf("tables are required")
	}
	if b.groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}
	if b.maxRounds <= 0 {
		return nil, fmt.Errorf("max rounds must be positive, got %d", b.maxRounds)
	}
	if b.maxDrift < 0 {
		return nil, fmt.Errorf("max drift must not be negative, got %s", b.maxDrift)
	}

	if b.nodeID != "" {
		if err := hlc.ValidateNodeID(b.nodeID); err != nil {
			return nil, syncErrors.NewValidationError(syncErrors.OpLoad, err)
		}
	}

	replicaID := b.replicaID
	if replicaID == "" {
		replicaID = b.nodeID
	}
	if replicaID == "" {
		replicaID = DefaultReplicaID
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Discard()
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}

	repo := replica.NewRepository(b.store, replicaID, b.schema)
	state, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	clock, ok, err := repo.LoadClock(ctx)
	if err != nil {
		return nil, err
	}
	nodeID := b.nodeID
	switch {
	case !ok:
		if nodeID == "" {
			nodeID = hlc.NewNodeID()
		}
		clock = hlc.Initialize(nodeID, b.now().UnixMilli())
	case nodeID == "":
		nodeID = clock.NodeID
	default:
		// a replica re-keyed to a new node id keeps its logical time
		clock.NodeID = nodeID
	}

	c := &Coordinator{
		groupID:   b.groupID,
		repo:      repo,
		transport: b.transport,
		ids:       b.ids,
		now:       b.now,
		maxRounds: b.maxRounds,
		maxDrift:  b.maxDrift,
		logger:    logger.WithComponent(logging.Component("coordinator")),
		metrics:   metrics,
		state:     state,
		clock:     clock,
	}
	c.online.Store(b.online)

	c.logger.DebugContext(ctx, "coordinator ready",
		slog.String("node_id", nodeID),
		slog.String("group_id", b.groupID),
		slog.Int("messages", state.Len()),
	)
	return c, nil
}
