package hlc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
)

const (
	isoLayout    = "2006-01-02T15:04:05.000Z"
	separator    = "/"
	counterWidth = 4
)

var ErrMalformedTimestamp = errors.New("malformed packed clock")

// Pack encodes c as "<ISO-8601 ms instant>/<4 hex counter>/<16 char node id>".
// The node id is right-padded with '0' to NodeIDLength characters.
func Pack(c Clock) string {
	var b strings.Builder
	b.Grow(len(isoLayout) + 1 + counterWidth + 1 + NodeIDLength)
	b.WriteString(time.UnixMilli(c.Logical).UTC().Format(isoLayout))
	b.WriteString(separator)
	counter := strconv.FormatUint(uint64(c.Counter), 16)
	b.WriteString(strings.Repeat("0", max(0, counterWidth-len(counter))))
	b.WriteString(counter)
	b.WriteString(separator)
	b.WriteString(padNodeID(c.NodeID))
	return b.String()
}

// Unpack decodes a string produced by Pack. Only the canonical form is
// accepted, so a clock has exactly one packed spelling.
func Unpack(s string) (Clock, error) {
	parts := strings.Split(s, separator)
	if len(parts) != 3 {
		return Clock{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}

	t, err := time.Parse(isoLayout, parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q: %v", ErrMalformedTimestamp, s, err)
	}

	if len(parts[1]) != counterWidth {
		return Clock{}, fmt.Errorf("%w: counter field %q", ErrMalformedTimestamp, parts[1])
	}
	counter, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: counter field %q: %v", ErrMalformedTimestamp, parts[1], err)
	}

	if len(parts[2]) != NodeIDLength {
		return Clock{}, fmt.Errorf("%w: node field %q", ErrMalformedTimestamp, parts[2])
	}
	nodeID := strings.TrimRight(parts[2], padChar)
	if err := ValidateNodeID(nodeID); err != nil {
		return Clock{}, fmt.Errorf("%w: %v", ErrMalformedTimestamp, err)
	}

	c := Clock{Counter: uint32(counter), Logical: t.UnixMilli(), NodeID: nodeID}
	if Pack(c) != s {
		return Clock{}, fmt.Errorf("%w: %q is not canonical", ErrMalformedTimestamp, s)
	}
	return c, nil
}

// MustUnpack is like Unpack but panics on malformed input. Intended for
// tests and constants.
func MustUnpack(s string) Clock {
	c, err := Unpack(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hash returns the 32-bit MurmurHash3 of the packed clock.
func Hash(c Clock) uint32 {
	return murmur3.Sum32([]byte(Pack(c)))
}
