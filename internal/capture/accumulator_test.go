package capture

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

func TestAccumulatorAppendAndDiscard(t *testing.T) {
	acc := NewAccumulator(0)
	acc.Append([]byte{1, 2, 3})
	acc.Append([]byte{4, 5})
	require.Equal(t, 5, acc.Len())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, acc.Bytes())

	acc.Discard(2)
	assert.Equal(t, []byte{3, 4, 5}, acc.Bytes())

	acc.Discard(10)
	assert.Equal(t, 0, acc.Len())
}

func TestAccumulatorCeilingDropsOldest(t *testing.T) {
	acc := NewAccumulator(8)
	acc.Append([]byte{0xaa, 0xbb, 0xcc, 0xdd})
	acc.Append([]byte{1, 2, 3, 4, 5, 6})

	require.Equal(t, 8, acc.Len())
	assert.Equal(t, []byte{0xcc, 0xdd, 1, 2, 3, 4, 5, 6}, acc.Bytes())
	assert.Equal(t, int64(2), acc.DiscardedBytes())
}

// A sync marker torn across the discard boundary must survive the ceiling:
// the retained tail is always long enough to hold a full marker once the
// rest of it arrives.
func TestAccumulatorCeilingPreservesTornMarker(t *testing.T) {
	acc := NewAccumulator(16)
	acc.Append(bytes.Repeat([]byte{0xff}, 13))
	acc.Append(mmwave.SyncMarker[:3])
	require.Equal(t, 16, acc.Len())

	acc.Append(mmwave.SyncMarker[3:])
	off := acc.LocateSync()
	require.GreaterOrEqual(t, off, 0)
	assert.Equal(t, mmwave.SyncMarker, acc.Bytes()[off:off+mmwave.SyncSize])
}

func TestAccumulatorClearKeepsNothing(t *testing.T) {
	acc := NewAccumulator(0)
	acc.Append(mmwave.SyncMarker)
	require.Equal(t, 0, acc.LocateSync())

	acc.Clear()
	assert.Equal(t, 0, acc.Len())
	assert.Equal(t, -1, acc.LocateSync())
}
