package linkstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dantte-lp/ribd/internal/linkstate"
)

func TestFloodingReductionHash_ReferenceVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		systemID [6]byte
		fragment byte
		want     uint32
	}{
		{"vector-1", [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, 0x00, 0x0699B13A},
		{"vector-2", [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, 0x07, 0x0699B13A},
		{"vector-3", [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, 0x08, 0x0799B53B},
		{"vector-4", [6]byte{0xFF, 0x05, 0x04, 0x03, 0x02, 0x01}, 0x00, 0x1165D6C5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := linkstate.FloodingReductionHash(tt.systemID, tt.fragment)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFloodingReductionHash_FragmentLowBitsIgnored(t *testing.T) {
	t.Parallel()

	// 0x00 and 0x07 both map to fd=0 (fragment >> 3), so they must
	// produce identical hashes — exercised directly by vectors 1/2
	// above; this test documents the invariant by name.
	id := [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	assert.Equal(t,
		linkstate.FloodingReductionHash(id, 0x00),
		linkstate.FloodingReductionHash(id, 0x07),
	)
}
