package merkle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-merkle-sync/hlc"
)

// 2023-11-14T22:13:20Z
const base int64 = 1_700_000_000_000

func clockAt(logical int64, counter uint32, node string) hlc.Clock {
	return hlc.Clock{Counter: counter, Logical: logical, NodeID: node}
}

func randomClocks(r *rand.Rand, n int, from, span int64) []hlc.Clock {
	nodes := []string{"A", "B", "C", "e35dd11177e4cc2c"}
	out := make([]hlc.Clock, n)
	for i := range out {
		out[i] = clockAt(from+r.Int63n(span), uint32(i), nodes[r.Intn(len(nodes))])
	}
	return out
}

func TestKey(t *testing.T) {
	tests := []struct {
		logical int64
		want    string
	}{
		{logical: 0, want: "0000000000000000"},
		{logical: 59_999, want: "0000000000000000"},
		{logical: 60_000, want: "0000000000000001"},
		{logical: 1_589_455_520_123, want: "1211211212201101"},
		{logical: base, want: "1222022111000201"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.logical), "logical %d", tt.logical)
	}
}

func TestKeyToTimestamp(t *testing.T) {
	assert.Equal(t, int64(0), KeyToTimestamp(""))
	assert.Equal(t, int64(1_699_999_980_000), KeyToTimestamp("1222022111000201"))
	assert.Equal(t, int64(60_000), KeyToTimestamp("0000000000000001"))
	// a partial path is the start of the range it covers
	assert.Equal(t, KeyToTimestamp("1200000000000000"), KeyToTimestamp("12"))

	for _, logical := range []int64{0, 123_456_789, base, 1_589_455_520_123} {
		assert.Equal(t, logical-logical%BucketMillis, KeyToTimestamp(Key(logical)))
	}
}

func TestInsertIsPersistent(t *testing.T) {
	empty := New()
	c := clockAt(base, 0, "A")

	one := Insert(empty, c)
	assert.Equal(t, uint32(0), empty.Hash())
	assert.Nil(t, empty.Child(1))
	assert.Equal(t, hlc.Hash(c), one.Hash())

	two := one.Insert(clockAt(base+BucketMillis, 0, "B"))
	assert.Equal(t, hlc.Hash(c), one.Hash(), "earlier value must not change")
	assert.NotEqual(t, one.Hash(), two.Hash())
}

func TestInsertUpdatesEveryNodeOnPath(t *testing.T) {
	c := clockAt(base, 3, "A")
	h := hlc.Hash(c)
	tr := Insert(nil, c)

	node := tr
	for i, ch := range Key(c.Logical) {
		d := int(ch - '0')
		for other := 0; other < radix; other++ {
			if other != d {
				assert.Nil(t, node.Child(other), "depth %d digit %d must be absent", i, other)
			}
		}
		node = node.Child(d)
		require.NotNil(t, node, "depth %d", i)
		assert.Equal(t, h, node.Hash(), "depth %d", i)
	}
	assert.Nil(t, node.Child(0))
}

func TestInsertSharesUntouchedSubtrees(t *testing.T) {
	old := clockAt(0, 0, "A")
	recent := clockAt(base, 0, "A")

	tr := Insert(nil, old)
	next := Insert(tr, recent)

	assert.Same(t, tr.Child(0), next.Child(0))
}

func TestInsertCommutative(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	clocks := randomClocks(r, 200, base, 7*24*60*60*1000)
	reference := Build(clocks...)

	for i := 0; i < 10; i++ {
		shuffled := append([]hlc.Clock(nil), clocks...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Build(shuffled...)
		assert.Equal(t, reference.Hash(), got.Hash())
		assert.Equal(t, reference, got)
	}
}

func TestDoubleInsertCancels(t *testing.T) {
	c := clockAt(base, 0, "A")
	tr := Insert(Insert(nil, c), c)
	assert.Equal(t, uint32(0), tr.Hash())
}

func TestDifferenceEqualTries(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	clocks := randomClocks(r, 50, base, 24*60*60*1000)

	_, ok := Difference(Build(clocks...), Build(clocks...))
	assert.False(t, ok)

	_, ok = Difference(nil, New())
	assert.False(t, ok)
}

func TestDifferenceAgainstEmpty(t *testing.T) {
	earliest := clockAt(base+5*BucketMillis+123, 0, "B")
	tr := Build(clockAt(base+90*BucketMillis, 0, "A"), earliest, clockAt(base+7*BucketMillis, 0, "A"))

	got, ok := Difference(tr, New())
	require.True(t, ok)
	assert.Equal(t, KeyToTimestamp(Key(earliest.Logical)), got)

	got, ok = Difference(nil, tr)
	require.True(t, ok)
	assert.Equal(t, KeyToTimestamp(Key(earliest.Logical)), got)
}

func TestDifferenceFindsEarliestDisagreement(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	const span = 30 * 24 * 60 * 60 * 1000

	for round := 0; round < 50; round++ {
		shared := randomClocks(r, 40, base, span)

		onlyA := randomClocks(r, 1+r.Intn(3), base+span, span)
		onlyB := randomClocks(r, r.Intn(3), base+span, span)
		for i := range onlyB {
			onlyB[i].NodeID = "D"
		}

		earliest := onlyA[0].Logical
		for _, c := range append(onlyA[1:], onlyB...) {
			earliest = min(earliest, c.Logical)
		}

		a := Build(append(append([]hlc.Clock(nil), shared...), onlyA...)...)
		b := Build(append(append([]hlc.Clock(nil), shared...), onlyB...)...)

		got, ok := Difference(a, b)
		require.True(t, ok, "round %d", round)
		assert.LessOrEqual(t, got, earliest, "round %d", round)
		assert.Equal(t, earliest-earliest%BucketMillis, got, "round %d", round)
	}
}

func TestDifferenceIsSymmetric(t *testing.T) {
	a := Build(clockAt(base, 0, "A"), clockAt(base+BucketMillis, 0, "A"))
	b := Build(clockAt(base, 0, "A"))

	ab, okAB := Difference(a, b)
	ba, okBA := Difference(b, a)
	require.True(t, okAB)
	require.True(t, okBA)
	assert.Equal(t, ab, ba)
	assert.Equal(t, base+BucketMillis-(base+BucketMillis)%BucketMillis, ab)
}
