package replica

import (
	"context"
	"encoding/json"
	"fmt"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/storage"
)

const component = "replica"

// Repository persists the state and clock of one replica in a
// KeyValueStore.
type Repository struct {
	store     storage.KeyValueStore
	replicaID string
	schema    Schema
}

// NewRepository returns a repository storing under replicaID.
func NewRepository(store storage.KeyValueStore, replicaID string, schema Schema) *Repository {
	return &Repository{store: store, replicaID: replicaID, schema: schema}
}

// StateKey is the store key of the replica state.
func (r *Repository) StateKey() string {
	return "replica/" + r.replicaID + "/state"
}

// ClockKey is the store key of the replica clock.
func (r *Repository) ClockKey() string {
	return "replica/" + r.replicaID + "/clock"
}

// Load returns the persisted state, or an empty state on first use.
func (r *Repository) Load(ctx context.Context) (*State, error) {
	data, ok, err := r.store.Get(ctx, r.StateKey())
	if err != nil {
		return nil, syncErrors.WrapStorage(err, syncErrors.OpLoad, component)
	}
	if !ok {
		return New(r.schema), nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, syncErrors.WrapOpComponent(fmt.Errorf("decode %s: %w", r.StateKey(), err), syncErrors.OpLoad, component)
	}
	return Restore(r.schema, snap)
}

// Save persists s.
func (r *Repository) Save(ctx context.Context, s *State) error {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return syncErrors.WrapOpComponent(err, syncErrors.OpStore, component)
	}
	return syncErrors.WrapStorage(r.store.Set(ctx, r.StateKey(), data), syncErrors.OpStore, component)
}

// LoadClock returns the persisted clock. ok is false when none was saved.
func (r *Repository) LoadClock(ctx context.Context) (hlc.Clock, bool, error) {
	data, ok, err := r.store.Get(ctx, r.ClockKey())
	if err != nil {
		return hlc.Clock{}, false, syncErrors.WrapStorage(err, syncErrors.OpLoad, component)
	}
	if !ok {
		return hlc.Clock{}, false, nil
	}
	c, err := hlc.Unpack(string(data))
	if err != nil {
		return hlc.Clock{}, false, syncErrors.NewClockError(syncErrors.OpLoad, err)
	}
	return c, true, nil
}

// SaveClock persists c in packed form.
func (r *Repository) SaveClock(ctx context.Context, c hlc.Clock) error {
	return syncErrors.WrapStorage(r.store.Set(ctx, r.ClockKey(), []byte(hlc.Pack(c))), syncErrors.OpStore, component)
}

// Commit persists s and c together, atomically when the store supports
// batches.
func (r *Repository) Commit(ctx context.Context, s *State, c hlc.Clock) error {
	b, ok := r.store.(storage.Batcher)
	if !ok {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
		return r.SaveClock(ctx, c)
	}

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return syncErrors.WrapOpComponent(err, syncErrors.OpStore, component)
	}
	return syncErrors.WrapStorage(b.SetBatch(ctx, map[string][]byte{
		r.StateKey(): data,
		r.ClockKey(): []byte(hlc.Pack(c)),
	}), syncErrors.OpStore, component)
}

// Reset discards the persisted state and returns an empty one. The clock
// is kept so timestamps issued after a reset still sort after earlier ones.
func (r *Repository) Reset(ctx context.Context) (*State, error) {
	s := New(r.schema)
	if d, ok := r.store.(storage.Deleter); ok {
		if err := d.Delete(ctx, r.StateKey()); err != nil {
			return nil, syncErrors.WrapStorage(err, syncErrors.OpStore, component)
		}
		return s, nil
	}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
