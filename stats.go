package filecache

import (
	"encoding/binary"
	"fmt"
	"math"
)

// statsWireSize is the encoded size of a Stats record: eleven 8-byte
// big-endian integers in fixed order.
const statsWireSize = 11 * 8

// Stats is the externally reported snapshot of a FileCache: byte totals
// plus hit/miss counters, with a sub-record for whole-file entries.
//
// The binary encoding is append-only and order-stable so that persisted
// blobs remain readable across versions: timestamp, active, total, used,
// evicted, hits, misses, then the full-file sub-record (active, used,
// evicted, hits), all as 8-byte big-endian integers.
type Stats struct {
	Timestamp int64 // wall clock at snapshot time, milliseconds
	Active    int64 // bytes held by referenced entries
	Total     int64 // configured capacity in bytes
	Used      int64 // bytes held by all resident entries
	Evicted   int64 // cumulative evicted bytes
	Hits      int64
	Misses    int64

	FullFile FullFileStats
}

// FullFileStats is the whole-file subset of Stats.
type FullFileStats struct {
	Active  int64
	Used    int64
	Evicted int64
	Hits    int64
}

// ActivePercent returns the referenced share of used bytes, rounded to
// the nearest integer percentage. Zero when nothing is used.
func (s Stats) ActivePercent() int64 {
	return percentage(s.Active, s.Used)
}

// UsedPercent returns the used share of total capacity.
func (s Stats) UsedPercent() int64 {
	return percentage(s.Used, s.Total)
}

// ActivePercent returns the referenced share of used full-file bytes.
func (s FullFileStats) ActivePercent() int64 {
	return percentage(s.Active, s.Used)
}

func percentage(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return int64(math.Round(100 * float64(part) / float64(whole)))
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Stats) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, statsWireSize)
	for _, v := range []int64{
		s.Timestamp, s.Active, s.Total, s.Used, s.Evicted, s.Hits, s.Misses,
		s.FullFile.Active, s.FullFile.Used, s.FullFile.Evicted, s.FullFile.Hits,
	} {
		buf = binary.BigEndian.AppendUint64(buf, uint64(v))
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Stats) UnmarshalBinary(data []byte) error {
	if len(data) != statsWireSize {
		return fmt.Errorf("filecache: stats blob is %d bytes, want %d", len(data), statsWireSize)
	}
	next := func() int64 {
		v := binary.BigEndian.Uint64(data)
		data = data[8:]
		return int64(v)
	}
	s.Timestamp = next()
	s.Active = next()
	s.Total = next()
	s.Used = next()
	s.Evicted = next()
	s.Hits = next()
	s.Misses = next()
	s.FullFile.Active = next()
	s.FullFile.Used = next()
	s.FullFile.Evicted = next()
	s.FullFile.Hits = next()
	return nil
}
