// Package merkle implements a time-bucketed Merkle hash-trie over HLC
// timestamps.
//
// Every inserted clock is routed by the base-3 representation of its minute
// (Logical / 60000) and its hash is XOR-ed into each node along that path, so
// the root summarizes the whole set of inserted clocks and two tries built
// from the same set agree on every node regardless of insertion order.
// Inserting the same clock twice cancels it out; callers deduplicate first.
//
// Tries are persistent values. Insert never modifies its input and shares
// every node that is not on the updated path. The nil *Trie is the empty trie.
package merkle

import (
	"strconv"
	"strings"

	"github.com/c0deZ3R0/go-merkle-sync/hlc"
)

const (
	// KeyLength is the number of base-3 digits in a full bucket key.
	KeyLength = 16

	// BucketMillis is the width of a leaf bucket.
	BucketMillis int64 = 60_000

	radix = 3
)

// Trie is an immutable node of the hash-trie.
type Trie struct {
	hash     uint32
	children [radix]*Trie
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{}
}

// Build inserts clocks into an empty trie.
func Build(clocks ...hlc.Clock) *Trie {
	t := New()
	for _, c := range clocks {
		t = Insert(t, c)
	}
	return t
}

// Hash returns the XOR of every clock hash inserted below t.
func (t *Trie) Hash() uint32 {
	if t == nil {
		return 0
	}
	return t.hash
}

// Child returns the subtree for digit (0, 1 or 2), or nil when absent.
func (t *Trie) Child(digit int) *Trie {
	if t == nil || digit < 0 || digit >= radix {
		return nil
	}
	return t.children[digit]
}

// Insert returns a new trie with c folded into the bucket of its minute.
func Insert(t *Trie, c hlc.Clock) *Trie {
	return insertKey(t, Key(c.Logical), hlc.Hash(c))
}

// Insert is the method form of the package level Insert.
func (t *Trie) Insert(c hlc.Clock) *Trie {
	return Insert(t, c)
}

func insertKey(t *Trie, key string, h uint32) *Trie {
	n := &Trie{}
	if t != nil {
		*n = *t
	}
	n.hash ^= h
	if key == "" {
		return n
	}
	d := int(key[0] - '0')
	n.children[d] = insertKey(t.Child(d), key[1:], h)
	return n
}

// Key returns the bucket key of a logical time: its minute in base 3,
// left-padded with '0' to KeyLength digits.
func Key(logical int64) string {
	minutes := max(logical, 0) / BucketMillis
	digits := strconv.FormatInt(minutes, radix)
	if len(digits) >= KeyLength {
		return digits
	}
	return strings.Repeat("0", KeyLength-len(digits)) + digits
}

// KeyToTimestamp decodes a (possibly partial) key path to the start of its
// bucket in milliseconds. Partial paths are right-padded with '0'.
func KeyToTimestamp(key string) int64 {
	if len(key) < KeyLength {
		key += strings.Repeat("0", KeyLength-len(key))
	}
	minutes, err := strconv.ParseInt(key, radix, 64)
	if err != nil {
		return 0
	}
	return minutes * BucketMillis
}

// Difference locates the earliest bucket in which a and b disagree. It
// reports false when the root hashes match.
func Difference(a, b *Trie) (int64, bool) {
	if a.Hash() == b.Hash() {
		return 0, false
	}

	var path strings.Builder
	for {
		next := -1
		for d := 0; d < radix; d++ {
			if a.Child(d).Hash() != b.Child(d).Hash() {
				next = d
				break
			}
		}
		if next < 0 {
			return KeyToTimestamp(path.String()), true
		}
		path.WriteByte(byte('0' + next))
		a, b = a.Child(next), b.Child(next)
	}
}
