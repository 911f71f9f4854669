package replica

import (
	"maps"

	"github.com/c0deZ3R0/go-merkle-sync/hlc"
)

// Snapshot is the persisted form of a State. The trie and the dedup and
// last-writer indexes are derived from Log on Restore.
type Snapshot struct {
	Log    []Message                             `json:"log"`
	Tables map[string]map[string]map[string]any `json:"tables"`
}

// Snapshot returns a deep copy of the persisted parts of s.
func (s *State) Snapshot() Snapshot {
	tables := make(map[string]map[string]map[string]any, len(s.tables))
	for name, rows := range s.tables {
		copied := make(map[string]map[string]any, len(rows))
		for id, r := range rows {
			copied[id] = maps.Clone(r)
		}
		tables[name] = copied
	}
	return Snapshot{Log: s.Log(), Tables: tables}
}

// Restore rebuilds a State from a snapshot. Duplicate log entries are
// dropped. When the snapshot carries no tables they are replayed from the
// log with the last-writer-wins rule.
func Restore(schema Schema, snap Snapshot) (*State, error) {
	tx := New(schema).Begin()

	replay := snap.Tables == nil
	for _, m := range snap.Log {
		if replay {
			if _, err := tx.Merge(m); err != nil {
				return nil, err
			}
			continue
		}

		c, err := m.Validate()
		if err != nil {
			return nil, err
		}
		if err := tx.next.checkTable(m.Table); err != nil {
			return nil, err
		}
		if !tx.appendToLog(m, c) {
			continue
		}
		tx.Insert(c)
		if cur, ok := tx.next.latest[m.field()]; !ok || hlc.Compare(c, cur) > 0 {
			tx.next.latest[m.field()] = c
		}
	}

	s := tx.Commit()
	if replay {
		return s, nil
	}

	for name, rows := range snap.Tables {
		if err := s.checkTable(name); err != nil {
			return nil, err
		}
		copied := make(map[string]map[string]any, len(rows))
		for id, r := range rows {
			copied[id] = maps.Clone(r)
		}
		s.tables[name] = copied
	}
	return s, nil
}
