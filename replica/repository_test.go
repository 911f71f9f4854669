package replica

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/storage"
	"github.com/c0deZ3R0/go-merkle-sync/storage/memory"
)

func populated(t *testing.T) *State {
	t.Helper()
	tx := New(Tables("todos")).Begin()
	for _, m := range []Message{
		msg("todos", "r1", "title", "milk", stamp(60_000, 0, "A")),
		msg("todos", "r1", "title", "eggs", stamp(120_000, 0, "B")),
		msg("todos", "r2", "title", "bread", stamp(90_000, 3, "A")),
		msg("todos", "r1", "title", "stale", stamp(30_000, 0, "B")),
	} {
		_, err := tx.Merge(m)
		require.NoError(t, err)
	}
	return tx.Commit()
}

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	s := populated(t)

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := Restore(Tables("todos"), snap)
	require.NoError(t, err)

	assert.Equal(t, s.Trie().Hash(), restored.Trie().Hash())
	assert.Equal(t, s.Log(), restored.Log())
	assert.Equal(t, s.Rows("todos"), restored.Rows("todos"))

	latest, ok := restored.Latest("todos", "r1", "title")
	require.True(t, ok)
	assert.Equal(t, hlc.MustUnpack(stamp(120_000, 0, "B")), latest)

	// an older message arriving after restore must not win
	after, outcome, err := restored.Merge(msg("todos", "r1", "title", "late", stamp(100_000, 0, "C")))
	require.NoError(t, err)
	assert.Equal(t, Superseded, outcome)
	v, _ := after.Value("todos", "r1", "title")
	assert.Equal(t, "eggs", v)
}

func TestRestore_ReplaysTablesFromLog(t *testing.T) {
	s := populated(t)

	restored, err := Restore(Tables("todos"), Snapshot{Log: s.Log()})
	require.NoError(t, err)
	assert.Equal(t, s.Rows("todos"), restored.Rows("todos"))
	assert.Equal(t, s.Trie().Hash(), restored.Trie().Hash())
}

func TestRestore_DropsDuplicateLogEntries(t *testing.T) {
	m := msg("todos", "r1", "title", "milk", stamp(60_000, 0, "A"))

	restored, err := Restore(Tables("todos"), Snapshot{
		Log:    []Message{m, m},
		Tables: map[string]map[string]map[string]any{"todos": {"r1": {"title": "milk"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Len())
	assert.Equal(t, hlc.Hash(hlc.MustUnpack(m.Timestamp)), restored.Trie().Hash())
}

func TestRestore_UnknownTable(t *testing.T) {
	_, err := Restore(Tables("todos"), Snapshot{
		Tables: map[string]map[string]map[string]any{"notes": {}},
	})
	assert.True(t, syncErrors.IsUnknownTable(err))
}

func TestRepository_LoadSave(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := NewRepository(store, "A1", Tables("todos"))
	assert.Equal(t, "replica/A1/state", repo.StateKey())

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.True(t, empty.Schema().Recognizes("todos"))

	s := populated(t)
	require.NoError(t, repo.Save(ctx, s))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Trie().Hash(), loaded.Trie().Hash())
	assert.Equal(t, s.Rows("todos"), loaded.Rows("todos"))

	raw, ok, err := store.Get(ctx, repo.StateKey())
	require.NoError(t, err)
	require.True(t, ok)
	var layout map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &layout))
	assert.Contains(t, layout, "log")
	assert.Contains(t, layout, "tables")
}

func TestRepository_Clock(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.New(), "A1", AnyTable())

	_, ok, err := repo.LoadClock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	c := hlc.Clock{Counter: 7, Logical: 1_700_000_000_000, NodeID: "A1"}
	require.NoError(t, repo.SaveClock(ctx, c))

	got, ok, err := repo.LoadClock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c, got)
}

func TestRepository_Reset(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := NewRepository(store, "A1", Tables("todos"))

	require.NoError(t, repo.Save(ctx, populated(t)))
	require.NoError(t, repo.SaveClock(ctx, hlc.Initialize("A1", 5)))

	s, err := repo.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())

	_, ok, err := repo.LoadClock(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "reset keeps the clock")
}

func TestRepository_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Close())

	_, err := NewRepository(store, "A1", AnyTable()).Load(ctx)
	require.Error(t, err)
	assert.True(t, syncErrors.IsRetryable(err))
}

func TestRepository_CorruptState(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := NewRepository(store, "A1", AnyTable())
	require.NoError(t, store.Set(ctx, repo.StateKey(), []byte("{not json")))

	_, err := repo.Load(ctx)
	assert.Error(t, err)
}

func TestRepository_Commit(t *testing.T) {
	ctx := context.Background()
	s := populated(t)
	c := hlc.Clock{Counter: 1, Logical: 120_000, NodeID: "A1"}

	for name, repo := range map[string]*Repository{
		"batch":  NewRepository(memory.New(), "A1", Tables("todos")),
		"single": NewRepository(struct{ storage.KeyValueStore }{memory.New()}, "A1", Tables("todos")),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Commit(ctx, s, c))

			loaded, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, s.Trie().Hash(), loaded.Trie().Hash())

			got, ok, err := repo.LoadClock(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, c, got)
		})
	}
}
