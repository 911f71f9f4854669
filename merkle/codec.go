package merkle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const hashKey = "hash"

// MarshalJSON encodes t as nested objects keyed by digit, each carrying its
// "hash". Absent children are omitted.
func (t *Trie) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	t.encode(&buf)
	return buf.Bytes(), nil
}

func (t *Trie) encode(buf *bytes.Buffer) {
	buf.WriteString(`{"hash":`)
	buf.WriteString(strconv.FormatUint(uint64(t.Hash()), 10))
	for d := 0; d < radix; d++ {
		child := t.Child(d)
		if child == nil {
			continue
		}
		buf.WriteString(`,"`)
		buf.WriteByte(byte('0' + d))
		buf.WriteString(`":`)
		child.encode(buf)
	}
	buf.WriteByte('}')
}

// UnmarshalJSON decodes the format written by MarshalJSON. A missing hash is
// read as zero and signed 32-bit hashes are accepted.
func (t *Trie) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("merkle: %w", err)
	}

	*t = Trie{}
	for k, raw := range fields {
		if k == hashKey {
			var n json.Number
			if err := json.Unmarshal(raw, &n); err != nil {
				return fmt.Errorf("merkle: hash: %w", err)
			}
			v, err := n.Int64()
			if err != nil {
				return fmt.Errorf("merkle: hash %q: %w", n, err)
			}
			t.hash = uint32(v)
			continue
		}

		if len(k) != 1 || k[0] < '0' || k[0] >= '0'+radix {
			return fmt.Errorf("merkle: unexpected key %q", k)
		}
		if string(raw) == "null" {
			continue
		}
		child := &Trie{}
		if err := child.UnmarshalJSON(raw); err != nil {
			return err
		}
		t.children[k[0]-'0'] = child
	}
	return nil
}
