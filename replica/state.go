package replica

import (
	"maps"
	"slices"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/merkle"
)

type entry struct {
	msg   Message
	clock hlc.Clock
}

// State is the replica state of one group. The zero value is not usable;
// construct with New or Restore.
type State struct {
	schema Schema
	tables map[string]map[string]map[string]any
	log    []entry
	seen   map[logKey]struct{}
	latest map[fieldKey]hlc.Clock
	trie   *merkle.Trie
}

// New returns an empty state accepting the tables of schema.
func New(schema Schema) *State {
	return &State{
		schema: schema,
		tables: make(map[string]map[string]map[string]any),
		seen:   make(map[logKey]struct{}),
		latest: make(map[fieldKey]hlc.Clock),
		trie:   merkle.New(),
	}
}

// Schema returns the tables s recognizes.
func (s *State) Schema() Schema { return s.schema }

// Trie returns the Merkle summary of the log.
func (s *State) Trie() *merkle.Trie { return s.trie }

// Len returns the number of logged messages.
func (s *State) Len() int { return len(s.log) }

// Log returns the logged messages in append order.
func (s *State) Log() []Message {
	out := make([]Message, len(s.log))
	for i, e := range s.log {
		out[i] = e.msg
	}
	return out
}

// Has reports whether a message with this identity was logged.
func (s *State) Has(groupID, timestamp string) bool {
	_, ok := s.seen[logKey{group: groupID, timestamp: timestamp}]
	return ok
}

// Latest returns the clock of the value currently held for a field.
func (s *State) Latest(table, row, column string) (hlc.Clock, bool) {
	c, ok := s.latest[fieldKey{table: table, row: row, column: column}]
	return c, ok
}

// Value returns the current value of a field.
func (s *State) Value(table, row, column string) (any, bool) {
	v, ok := s.tables[table][row][column]
	return v, ok
}

// Row returns a copy of a row, tombstoned or not.
func (s *State) Row(table, row string) (map[string]any, bool) {
	r, ok := s.tables[table][row]
	if !ok {
		return nil, false
	}
	return maps.Clone(r), true
}

// Rows returns a copy of the live rows of table. Tombstoned rows are
// omitted.
func (s *State) Rows(table string) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for id, r := range s.tables[table] {
		if IsTombstone(r[TombstoneColumn]) {
			continue
		}
		out[id] = maps.Clone(r)
	}
	return out
}

// RowIDs returns the ids of every row of table, tombstoned ones included, in
// ascending order.
func (s *State) RowIDs(table string) []string {
	ids := make([]string, 0, len(s.tables[table]))
	for id := range s.tables[table] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tables returns the names of tables holding at least one row.
func (s *State) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for n, rows := range s.tables {
		if len(rows) > 0 {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// MessagesSince returns logged messages whose logical time is at or after
// since, in append order. Messages stamped by excludeNode are skipped; an
// empty excludeNode skips nothing.
func (s *State) MessagesSince(since int64, excludeNode string) []Message {
	var out []Message
	for _, e := range s.log {
		if e.clock.Logical < since {
			continue
		}
		if excludeNode != "" && e.clock.NodeID == excludeNode {
			continue
		}
		out = append(out, e.msg)
	}
	return out
}

// Apply returns a state with m written to its field, overwriting any value
// already there. Ordering is the caller's concern; see Tx.Merge.
func (s *State) Apply(m Message) (*State, error) {
	tx := s.Begin()
	if err := tx.Apply(m); err != nil {
		return s, err
	}
	return tx.Commit(), nil
}

// AppendToLog returns a state with m appended to the log, or s itself when a
// message with the same (group, timestamp) identity is already logged.
func (s *State) AppendToLog(m Message) (*State, bool, error) {
	tx := s.Begin()
	added, err := tx.AppendToLog(m)
	if err != nil || !added {
		return s, false, err
	}
	return tx.Commit(), true, nil
}

// Insert returns a state whose trie has c folded in.
func (s *State) Insert(c hlc.Clock) *State {
	tx := s.Begin()
	tx.Insert(c)
	return tx.Commit()
}

// Merge is the single-message form of Tx.Merge.
func (s *State) Merge(m Message) (*State, Outcome, error) {
	tx := s.Begin()
	outcome, err := tx.Merge(m)
	if err != nil {
		return s, outcome, err
	}
	return tx.Commit(), outcome, nil
}

func (s *State) checkTable(table string) error {
	if !s.schema.Recognizes(table) {
		return syncErrors.NewUnknownTableError(table)
	}
	return nil
}
