package hlc

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func randomNodeID(r *rand.Rand) string {
	n := 1 + r.Intn(NodeIDLength)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	if b[n-1] == '0' {
		b[n-1] = '1'
	}
	return string(b)
}

func randomClock(r *rand.Rand) Clock {
	return Clock{
		Counter: uint32(r.Intn(MaxCounter + 1)),
		Logical: r.Int63n(MaxLogical + 1),
		NodeID:  randomNodeID(r),
	}
}

func TestInitialize(t *testing.T) {
	c := Initialize("A", 10)
	assert.Equal(t, Clock{Counter: 0, Logical: 10, NodeID: "A"}, c)
}

func TestSend(t *testing.T) {
	tests := []struct {
		name  string
		local Clock
		now   int64
		want  Clock
	}{
		{
			name:  "wall time advanced resets counter",
			local: Clock{Counter: 7, Logical: 10, NodeID: "A"},
			now:   11,
			want:  Clock{Counter: 0, Logical: 11, NodeID: "A"},
		},
		{
			name:  "wall time stalled bumps counter",
			local: Clock{Counter: 7, Logical: 10, NodeID: "A"},
			now:   10,
			want:  Clock{Counter: 8, Logical: 10, NodeID: "A"},
		},
		{
			name:  "wall time regressed keeps logical",
			local: Clock{Counter: 0, Logical: 10, NodeID: "A"},
			now:   3,
			want:  Clock{Counter: 1, Logical: 10, NodeID: "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Send(tt.local, tt.now))
		})
	}
}

func TestSendIsStrictlyMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	c := Initialize("node1", 1_000)
	for i := 0; i < 2000; i++ {
		// wall time jitters backwards and forwards
		now := int64(1_000 + r.Intn(200) - 100 + i/10)
		next := Send(c, now)
		require.Equal(t, 1, Compare(next, c), "send %d: %v !> %v", i, next, c)
		c = next
	}
}

func TestReceive(t *testing.T) {
	tests := []struct {
		name   string
		local  Clock
		remote Clock
		now    int64
		want   Clock
	}{
		{
			name:   "wall time ahead of both",
			local:  Clock{Counter: 3, Logical: 5, NodeID: "B"},
			remote: Clock{Counter: 9, Logical: 6, NodeID: "A"},
			now:    7,
			want:   Clock{Counter: 0, Logical: 7, NodeID: "B"},
		},
		{
			name:   "equal logical takes max counter",
			local:  Clock{Counter: 3, Logical: 10, NodeID: "B"},
			remote: Clock{Counter: 9, Logical: 10, NodeID: "A"},
			now:    10,
			want:   Clock{Counter: 10, Logical: 10, NodeID: "B"},
		},
		{
			name:   "local ahead",
			local:  Clock{Counter: 3, Logical: 12, NodeID: "B"},
			remote: Clock{Counter: 9, Logical: 10, NodeID: "A"},
			now:    11,
			want:   Clock{Counter: 4, Logical: 12, NodeID: "B"},
		},
		{
			name:   "remote ahead adopts remote logical",
			local:  Clock{Counter: 0, Logical: 0, NodeID: "B"},
			remote: Clock{Counter: 0, Logical: 11, NodeID: "A"},
			now:    0,
			want:   Clock{Counter: 1, Logical: 11, NodeID: "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Receive(tt.local, tt.remote, tt.now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.local.NodeID, got.NodeID)
		})
	}
}

func TestSendReceiveScenario(t *testing.T) {
	a := Initialize("A", 10)
	assert.Equal(t, Clock{Counter: 0, Logical: 10, NodeID: "A"}, a)

	a = Send(a, 11)
	b := Receive(Initialize("B", 0), a, 0)
	assert.Equal(t, Clock{Counter: 1, Logical: 11, NodeID: "B"}, b)
	assert.Equal(t, 1, Compare(b, a), "received clock must follow the remote event")
}

func TestCompareTotalOrder(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	clocks := make([]Clock, 60)
	for i := range clocks {
		clocks[i] = randomClock(r)
		// force ties on logical and counter to exercise the tie-breaks
		if i%3 == 0 && i > 0 {
			clocks[i].Logical = clocks[i-1].Logical
		}
		if i%6 == 0 && i > 0 {
			clocks[i].Counter = clocks[i-1].Counter
		}
	}

	for _, a := range clocks {
		assert.Equal(t, 0, Compare(a, a))
		for _, b := range clocks {
			assert.Equal(t, -Compare(b, a), Compare(a, b), "antisymmetry %v %v", a, b)
			for _, c := range clocks {
				if Compare(a, b) <= 0 && Compare(b, c) <= 0 {
					assert.LessOrEqual(t, Compare(a, c), 0, "transitivity %v %v %v", a, b, c)
				}
			}
		}
	}
}

func TestCheckDrift(t *testing.T) {
	remote := Clock{Logical: 70_000, NodeID: "A"}

	assert.NoError(t, CheckDrift(remote, 10_000, time.Minute))
	assert.ErrorIs(t, CheckDrift(remote, 9_999, time.Minute), ErrClockDrift)
	assert.NoError(t, CheckDrift(remote, 0, 0), "zero limit disables the check")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Clock{Counter: MaxCounter, Logical: 0, NodeID: "A"}.Validate())
	assert.ErrorIs(t, Clock{Counter: MaxCounter + 1, NodeID: "A"}.Validate(), ErrCounterOverflow)
	assert.ErrorIs(t, Clock{Logical: -1, NodeID: "A"}.Validate(), ErrLogicalRange)
	assert.ErrorIs(t, Clock{Logical: MaxLogical + 1, NodeID: "A"}.Validate(), ErrLogicalRange)
	assert.ErrorIs(t, Clock{NodeID: ""}.Validate(), ErrInvalidNodeID)
}

func TestClockAsVersion(t *testing.T) {
	a := Clock{Counter: 1, Logical: 10, NodeID: "A"}
	b := Clock{Counter: 2, Logical: 10, NodeID: "A"}

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(&a))
	assert.Equal(t, 1, a.Compare(nil))
	assert.Equal(t, Pack(a), a.String())
	assert.True(t, Clock{}.IsZero())
	assert.False(t, a.IsZero())
	assert.Equal(t, time.UnixMilli(10).UTC(), a.Time())
}
