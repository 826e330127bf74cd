package capture

import "sync/atomic"

// Metrics counts the silent outcomes of the capture loop. Frame and point
// drops are invisible to the consumer by design, so these counters are the
// only way to observe them.
type Metrics struct {
	BytesRead      atomic.Int64
	FramesDecoded  atomic.Int64
	FramesCorrupt  atomic.Int64
	FramesEmpty    atomic.Int64
	FramesDropped  atomic.Int64 // delivery queue full
	PointsDecoded  atomic.Int64
	PointsFiltered atomic.Int64 // zero-coordinate records removed
	BufferOverflow atomic.Int64 // bytes discarded by the growth ceiling
}

// Snapshot is a point-in-time copy of the counters, JSON-ready for the
// status API.
type Snapshot struct {
	BytesRead      int64 `json:"bytes_read"`
	FramesDecoded  int64 `json:"frames_decoded"`
	FramesCorrupt  int64 `json:"frames_corrupt"`
	FramesEmpty    int64 `json:"frames_empty"`
	FramesDropped  int64 `json:"frames_dropped"`
	PointsDecoded  int64 `json:"points_decoded"`
	PointsFiltered int64 `json:"points_filtered"`
	BufferOverflow int64 `json:"buffer_overflow_bytes"`
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BytesRead:      m.BytesRead.Load(),
		FramesDecoded:  m.FramesDecoded.Load(),
		FramesCorrupt:  m.FramesCorrupt.Load(),
		FramesEmpty:    m.FramesEmpty.Load(),
		FramesDropped:  m.FramesDropped.Load(),
		PointsDecoded:  m.PointsDecoded.Load(),
		PointsFiltered: m.PointsFiltered.Load(),
		BufferOverflow: m.BufferOverflow.Load(),
	}
}
