package merkle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrieJSONRoundTrip(t *testing.T) {
	tr := Build(
		clockAt(base, 0, "A"),
		clockAt(base+3*BucketMillis, 1, "B"),
		clockAt(1_589_455_520_123, 0, "C"),
	)

	data, err := json.Marshal(tr)
	require.NoError(t, err)

	var decoded Trie
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, tr, &decoded)

	_, ok := Difference(tr, &decoded)
	assert.False(t, ok)
}

func TestTrieJSONShape(t *testing.T) {
	data, err := json.Marshal(New())
	require.NoError(t, err)
	assert.JSONEq(t, `{"hash":0}`, string(data))

	tr := Insert(nil, clockAt(0, 0, "A"))
	data, err = json.Marshal(tr)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Contains(t, generic, "hash")
	assert.Contains(t, generic, "0")
	assert.NotContains(t, generic, "1")
}

func TestTrieUnmarshalLenient(t *testing.T) {
	var empty Trie
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.Equal(t, uint32(0), empty.Hash())

	var signed Trie
	require.NoError(t, json.Unmarshal([]byte(`{"hash":-1,"2":{"hash":-1}}`), &signed))
	assert.Equal(t, uint32(0xFFFFFFFF), signed.Hash())
	assert.Equal(t, uint32(0xFFFFFFFF), signed.Child(2).Hash())
}

func TestTrieUnmarshalRejectsUnknownKeys(t *testing.T) {
	var tr Trie
	assert.Error(t, json.Unmarshal([]byte(`{"hash":1,"3":{"hash":1}}`), &tr))
	assert.Error(t, json.Unmarshal([]byte(`{"hash":"x"}`), &tr))
	assert.Error(t, json.Unmarshal([]byte(`[]`), &tr))
}
