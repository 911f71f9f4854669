package hlc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NodeIDLength is the width of the node field in a packed clock.
const NodeIDLength = 16

const padChar = "0"

var ErrInvalidNodeID = errors.New("invalid node id")

// ValidateNodeID accepts 1..16 ASCII letters or digits, not ending in '0'.
// The last rule keeps the padded form unambiguous, and since every allowed
// character sorts at or above '0' the padded form orders like the raw id.
func ValidateNodeID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNodeID)
	}
	if len(id) > NodeIDLength {
		return fmt.Errorf("%w: %q longer than %d characters", ErrInvalidNodeID, id, NodeIDLength)
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		if !(ch >= '0' && ch <= '9' || ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z') {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidNodeID, id, ch)
		}
	}
	if strings.HasSuffix(id, padChar) {
		return fmt.Errorf("%w: %q ends with pad character %q", ErrInvalidNodeID, id, padChar)
	}
	return nil
}

// NewNodeID returns a random node id derived from a UUIDv4.
func NewNodeID() string {
	for {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		if id := strings.TrimRight(raw[:NodeIDLength], padChar); id != "" {
			return id
		}
	}
}

func padNodeID(id string) string {
	if len(id) >= NodeIDLength {
		return id[:NodeIDLength]
	}
	return id + strings.Repeat(padChar, NodeIDLength-len(id))
}
