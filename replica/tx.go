package replica

import (
	"maps"

	"github.com/c0deZ3R0/go-merkle-sync/hlc"
)

// Outcome describes what Merge did with a message.
type Outcome int

const (
	// Duplicate messages were already logged and changed nothing.
	Duplicate Outcome = iota
	// Applied messages were logged and became the field's value.
	Applied
	// Superseded messages were logged but an equal or newer value was
	// already held for the field.
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Applied:
		return "applied"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

type rowKey struct {
	table, row string
}

// Tx batches writes against a State. Writes copy only what they touch and
// are invisible to the base State. A Tx must not be used after Commit.
type Tx struct {
	next      *State
	ownTables map[string]bool
	ownRows   map[rowKey]bool
	ownIndex  bool
}

// Begin starts a transaction on s.
func (s *State) Begin() *Tx {
	next := &State{
		schema: s.schema,
		tables: maps.Clone(s.tables),
		// full slice expression so the first append reallocates
		log:    s.log[:len(s.log):len(s.log)],
		seen:   s.seen,
		latest: s.latest,
		trie:   s.trie,
	}
	if next.tables == nil {
		next.tables = make(map[string]map[string]map[string]any)
	}
	return &Tx{
		next:      next,
		ownTables: make(map[string]bool),
		ownRows:   make(map[rowKey]bool),
	}
}

// Commit returns the resulting State.
func (t *Tx) Commit() *State {
	s := t.state()
	t.next = nil
	return s
}

func (t *Tx) state() *State {
	if t.next == nil {
		panic("replica: transaction used after commit")
	}
	return t.next
}

// Has reports whether the identity is already logged in this transaction.
func (t *Tx) Has(groupID, timestamp string) bool {
	return t.state().Has(groupID, timestamp)
}

// Latest returns the clock of the value held for a field.
func (t *Tx) Latest(table, row, column string) (hlc.Clock, bool) {
	return t.state().Latest(table, row, column)
}

// Apply writes m to its field unconditionally. It fails with an unknown
// table error, leaving the transaction untouched, when the schema does not
// recognize m.Table.
func (t *Tx) Apply(m Message) error {
	s := t.state()
	c, err := m.Validate()
	if err != nil {
		return err
	}
	if err := s.checkTable(m.Table); err != nil {
		return err
	}
	t.apply(m, c)
	return nil
}

func (t *Tx) apply(m Message, c hlc.Clock) {
	s := t.state()

	if !t.ownTables[m.Table] {
		s.tables[m.Table] = maps.Clone(s.tables[m.Table])
		if s.tables[m.Table] == nil {
			s.tables[m.Table] = make(map[string]map[string]any)
		}
		t.ownTables[m.Table] = true
	}
	rows := s.tables[m.Table]

	rk := rowKey{table: m.Table, row: m.Row}
	if !t.ownRows[rk] {
		rows[m.Row] = maps.Clone(rows[m.Row])
		if rows[m.Row] == nil {
			rows[m.Row] = make(map[string]any)
		}
		t.ownRows[rk] = true
	}
	rows[m.Row][m.Column] = m.Value

	t.ownIndexes()
	s.latest[m.field()] = c
}

// AppendToLog appends m unless its (group, timestamp) identity is already
// logged. It reports whether m was appended.
func (t *Tx) AppendToLog(m Message) (bool, error) {
	c, err := m.Validate()
	if err != nil {
		return false, err
	}
	return t.appendToLog(m, c), nil
}

func (t *Tx) appendToLog(m Message, c hlc.Clock) bool {
	s := t.state()
	if _, ok := s.seen[m.identity()]; ok {
		return false
	}
	t.ownIndexes()
	s.seen[m.identity()] = struct{}{}
	s.log = append(s.log, entry{msg: m, clock: c})
	return true
}

// Insert folds c into the trie.
func (t *Tx) Insert(c hlc.Clock) {
	s := t.state()
	s.trie = s.trie.Insert(c)
}

// Merge runs the receive rule for one message: log it unless it is a
// duplicate, fold new messages into the trie, and apply it when its
// timestamp is newer than the field's current value. Unknown tables and
// malformed messages fail without touching the transaction.
func (t *Tx) Merge(m Message) (Outcome, error) {
	s := t.state()
	c, err := m.Validate()
	if err != nil {
		return Duplicate, err
	}
	if err := s.checkTable(m.Table); err != nil {
		return Duplicate, err
	}

	if !t.appendToLog(m, c) {
		return Duplicate, nil
	}
	t.Insert(c)

	if cur, ok := s.latest[m.field()]; ok && hlc.Compare(c, cur) <= 0 {
		return Superseded, nil
	}
	t.apply(m, c)
	return Applied, nil
}

func (t *Tx) ownIndexes() {
	if t.ownIndex {
		return
	}
	s := t.state()
	s.seen = maps.Clone(s.seen)
	if s.seen == nil {
		s.seen = make(map[logKey]struct{})
	}
	s.latest = maps.Clone(s.latest)
	if s.latest == nil {
		s.latest = make(map[fieldKey]hlc.Clock)
	}
	t.ownIndex = true
}
