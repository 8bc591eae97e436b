package filecache_test

import (
	"encoding/binary"
	"testing"

	"github.com/hupe1980/filecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsBinaryRoundTrip(t *testing.T) {
	orig := filecache.Stats{
		Timestamp: 1724976000000,
		Active:    1 << 30,
		Total:     8 << 30,
		Used:      3 << 30,
		Evicted:   512 << 20,
		Hits:      123456,
		Misses:    789,
		FullFile: filecache.FullFileStats{
			Active:  256 << 20,
			Used:    1 << 30,
			Evicted: 64 << 20,
			Hits:    42,
		},
	}

	blob, err := orig.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, blob, 88)

	var got filecache.Stats
	require.NoError(t, got.UnmarshalBinary(blob))
	assert.Equal(t, orig, got)
}

func TestStatsWireOrder(t *testing.T) {
	s := filecache.Stats{
		Timestamp: 1,
		Active:    2,
		Total:     3,
		Used:      4,
		Evicted:   5,
		Hits:      6,
		Misses:    7,
		FullFile:  filecache.FullFileStats{Active: 8, Used: 9, Evicted: 10, Hits: 11},
	}
	blob, err := s.MarshalBinary()
	require.NoError(t, err)

	// The encoding is order-stable so persisted blobs stay readable.
	for i, want := range []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11} {
		got := binary.BigEndian.Uint64(blob[i*8:])
		assert.Equal(t, want, got, "field %d", i)
	}
}

func TestStatsUnmarshalRejectsBadLength(t *testing.T) {
	var s filecache.Stats
	assert.Error(t, s.UnmarshalBinary(make([]byte, 87)))
	assert.Error(t, s.UnmarshalBinary(nil))
}

func TestStatsPercentages(t *testing.T) {
	s := filecache.Stats{Active: 1, Used: 3, Total: 10}
	assert.Equal(t, int64(33), s.ActivePercent())
	assert.Equal(t, int64(30), s.UsedPercent())

	// Rounds to nearest rather than truncating.
	s = filecache.Stats{Active: 2, Used: 3}
	assert.Equal(t, int64(67), s.ActivePercent())

	// Division by zero is reported as zero percent.
	s = filecache.Stats{Active: 5, Used: 0}
	assert.Equal(t, int64(0), s.ActivePercent())
	assert.Equal(t, int64(0), filecache.Stats{Used: 5}.UsedPercent())

	ff := filecache.FullFileStats{Active: 1, Used: 2}
	assert.Equal(t, int64(50), ff.ActivePercent())
}
