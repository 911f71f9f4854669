package hlc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c0deZ3R0/go-merkle-sync/interfaces"
)

// Clock constraints
const (
	// MaxCounter is the largest counter that fits the 4 hex digit packed field.
	MaxCounter = 0xFFFF

	// MaxLogical is the last millisecond representable as a four digit year.
	MaxLogical int64 = 253402300799999
)

var (
	ErrCounterOverflow = errors.New("clock counter overflow")
	ErrClockDrift      = errors.New("remote clock drift exceeds limit")
	ErrLogicalRange    = errors.New("logical time out of range")
)

// Clock is a Hybrid Logical Clock value.
type Clock struct {
	// Counter orders events that share the same Logical value.
	Counter uint32 `json:"counter"`

	// Logical is the maximum physical time in milliseconds heard among nodes.
	Logical int64 `json:"logical"`

	// NodeID identifies the node that produced the clock.
	NodeID string `json:"nodeId"`
}

// Compile-time check to ensure Clock satisfies the Version interface
var _ interfaces.Version = Clock{}

// Initialize returns the first clock of a node.
func Initialize(nodeID string, now int64) Clock {
	return Clock{Counter: 0, Logical: now, NodeID: nodeID}
}

// Send advances local for a locally originated event. When wall time has
// moved past the recorded logical time the counter resets, otherwise the
// counter is bumped so the new clock is still strictly greater.
func Send(local Clock, now int64) Clock {
	if now > local.Logical {
		return Clock{Counter: 0, Logical: now, NodeID: local.NodeID}
	}
	local.Counter++
	return local
}

// Receive merges a remote clock into local. The node id of local is kept.
func Receive(local, remote Clock, now int64) Clock {
	switch {
	case local.Logical < now && remote.Logical < now:
		return Clock{Counter: 0, Logical: now, NodeID: local.NodeID}
	case local.Logical == remote.Logical:
		local.Counter = max(local.Counter, remote.Counter) + 1
		return local
	case remote.Logical < local.Logical:
		local.Counter++
		return local
	default:
		return Clock{Counter: remote.Counter + 1, Logical: remote.Logical, NodeID: local.NodeID}
	}
}

// Compare orders clocks by (Logical, Counter, NodeID) and returns -1, 0 or 1.
func Compare(a, b Clock) int {
	switch {
	case a.Logical < b.Logical:
		return -1
	case a.Logical > b.Logical:
		return 1
	case a.Counter < b.Counter:
		return -1
	case a.Counter > b.Counter:
		return 1
	}
	return strings.Compare(a.NodeID, b.NodeID)
}

// CheckDrift reports ErrClockDrift when remote is more than maxDrift ahead
// of now. A non-positive maxDrift disables the check.
func CheckDrift(remote Clock, now int64, maxDrift time.Duration) error {
	if maxDrift <= 0 {
		return nil
	}
	if lead := remote.Logical - now; lead > maxDrift.Milliseconds() {
		return fmt.Errorf("%w: %s ahead of local time", ErrClockDrift, time.Duration(lead)*time.Millisecond)
	}
	return nil
}

// Validate reports whether c can be packed without losing order or identity.
func (c Clock) Validate() error {
	if c.Counter > MaxCounter {
		return fmt.Errorf("%w: %d > %d", ErrCounterOverflow, c.Counter, MaxCounter)
	}
	if c.Logical < 0 || c.Logical > MaxLogical {
		return fmt.Errorf("%w: %d", ErrLogicalRange, c.Logical)
	}
	return ValidateNodeID(c.NodeID)
}

// Compare implements interfaces.Version. Versions of another concrete type
// are compared by their string encoding.
func (c Clock) Compare(other interfaces.Version) int {
	switch o := other.(type) {
	case Clock:
		return Compare(c, o)
	case *Clock:
		if o == nil {
			return 1
		}
		return Compare(c, *o)
	case nil:
		return 1
	}
	return strings.Compare(c.String(), other.String())
}

// String returns the packed form of c.
func (c Clock) String() string {
	return Pack(c)
}

// IsZero returns true for the zero Clock.
func (c Clock) IsZero() bool {
	return c == Clock{}
}

// Time returns the logical component as a UTC time.
func (c Clock) Time() time.Time {
	return time.UnixMilli(c.Logical).UTC()
}
