// Package replica holds the materialized state of one replica for one group:
// its tables, its append-only mutation log and the Merkle trie summarizing
// the log.
//
// A State is an immutable value. Every write produces a new State through a
// Tx, which copies only the rows and indexes it touches; readers holding the
// previous State never observe the change.
package replica

import (
	"fmt"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/hlc"
)

// TombstoneColumn marks a row as deleted when set to true.
const TombstoneColumn = "tombstone"

// Message is a single field-level mutation.
type Message struct {
	GroupID   string `json:"groupId"`
	Table     string `json:"table"`
	Row       string `json:"row"`
	Column    string `json:"column"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Clock decodes the message timestamp.
func (m Message) Clock() (hlc.Clock, error) {
	return hlc.Unpack(m.Timestamp)
}

// Validate checks that m addresses a field and carries a valid timestamp.
// It returns the decoded clock on success.
func (m Message) Validate() (hlc.Clock, error) {
	switch {
	case m.Table == "":
		return hlc.Clock{}, syncErrors.NewValidationError(syncErrors.OpApply, fmt.Errorf("message %s: empty table", m.Timestamp))
	case m.Row == "":
		return hlc.Clock{}, syncErrors.NewValidationError(syncErrors.OpApply, fmt.Errorf("message %s: empty row", m.Timestamp))
	case m.Column == "":
		return hlc.Clock{}, syncErrors.NewValidationError(syncErrors.OpApply, fmt.Errorf("message %s: empty column", m.Timestamp))
	}

	c, err := m.Clock()
	if err != nil {
		return hlc.Clock{}, syncErrors.NewClockError(syncErrors.OpApply, err)
	}
	return c, nil
}

type fieldKey struct {
	table, row, column string
}

func (m Message) field() fieldKey {
	return fieldKey{table: m.Table, row: m.Row, column: m.Column}
}

type logKey struct {
	group, timestamp string
}

func (m Message) identity() logKey {
	return logKey{group: m.GroupID, timestamp: m.Timestamp}
}

// IsTombstone reports whether v marks a row as deleted.
func IsTombstone(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case int:
		return t == 1
	case string:
		return t == "true" || t == "1"
	}
	return false
}
