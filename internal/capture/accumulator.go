// Package capture drives the polled acquisition of sensor bytes and their
// decoding into point-cloud frames. A single worker goroutine owns the byte
// buffer end to end; decoded frames are handed to the consumer through a
// bounded queue drained by a separate dispatch goroutine so slow consumers
// never stall the polling cadence.
package capture

import (
	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

// DefaultMaxBuffer bounds accumulator growth when no sync marker ever
// appears, e.g. when the wrong device is attached to the data port. Oldest
// bytes are discarded first; at most SyncSize-1 bytes of a torn marker can
// sit at the discard boundary, so the retained tail always suffices to
// resynchronise.
const DefaultMaxBuffer = 1 << 20

// Accumulator owns the raw byte buffer between polls. It is not safe for
// concurrent use; the capture worker is its only caller.
type Accumulator struct {
	buf       []byte
	max       int
	discarded int64
}

// NewAccumulator creates an empty accumulator with the given growth ceiling.
// A non-positive ceiling selects DefaultMaxBuffer.
func NewAccumulator(maxBytes int) *Accumulator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBuffer
	}
	return &Accumulator{max: maxBytes}
}

// Append concatenates new bytes onto the buffer, discarding the oldest bytes
// when the ceiling would be exceeded.
func (a *Accumulator) Append(data []byte) {
	a.buf = append(a.buf, data...)
	if over := len(a.buf) - a.max; over > 0 {
		a.discarded += int64(over)
		a.buf = a.buf[over:]
	}
}

// LocateSync returns the offset of the first sync marker in the buffer, or
// -1 when absent.
func (a *Accumulator) LocateSync() int {
	return mmwave.FindSync(a.buf)
}

// Bytes exposes the current buffer contents. The slice is owned by the
// accumulator and only valid until the next mutation.
func (a *Accumulator) Bytes() []byte {
	return a.buf
}

// Len returns the buffered byte count.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Clear empties the buffer, keeping the backing array for reuse.
func (a *Accumulator) Clear() {
	a.buf = a.buf[:0]
}

// Discard drops the first n bytes, preserving any trailing bytes for the
// next decode attempt.
func (a *Accumulator) Discard(n int) {
	if n >= len(a.buf) {
		a.buf = a.buf[:0]
		return
	}
	a.buf = append(a.buf[:0], a.buf[n:]...)
}

// DiscardedBytes reports how many bytes the growth ceiling has dropped.
func (a *Accumulator) DiscardedBytes() int64 {
	return a.discarded
}
