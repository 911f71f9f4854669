package hlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNodeID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "A"},
		{id: "e35dd11177e4cc2c"},
		{id: "node1"},
		{id: "", wantErr: true},
		{id: "A0", wantErr: true},
		{id: "node-1", wantErr: true},
		{id: "has space", wantErr: true},
		{id: "abcdefghijklmnopq", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateNodeID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidNodeID)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewNodeID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewNodeID()
		require.NoError(t, ValidateNodeID(id))
		assert.False(t, seen[id], "duplicate node id %s", id)
		seen[id] = true
	}
}
