// Package serialio abstracts the two half-duplex serial channels to an
// mmWave sensor: a text control channel for commands and configuration, and
// a binary data channel carrying the frame stream. The interfaces mirror
// what go.bug.st/serial provides so real hardware and test ports are
// interchangeable.
package serialio

import (
	"io"
	"time"
)

// Porter is the minimal interface needed for a serial port. The abstraction
// enables unit testing without real serial hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with a read timeout, which the polling source
// relies on to keep data-channel reads from blocking the capture cadence.
type TimeoutPorter interface {
	Porter
	SetReadTimeout(timeout time.Duration) error
}

// Factory creates serial ports. Injected into the session controller so
// tests can substitute recorded or scripted ports.
type Factory interface {
	// Open opens a serial port at the given path with the given options.
	Open(path string, opts PortOptions) (Porter, error)
}

// pollTimeout bounds a single data-channel read. Short enough that a read
// against an idle device returns well inside one capture iteration.
const pollTimeout = 5 * time.Millisecond

// PollingSource adapts a serial port into a non-blocking byte source: each
// ReadAvailable returns whatever the driver has buffered right now, possibly
// nothing.
type PollingSource struct {
	port Porter
	buf  []byte
}

// NewPollingSource wraps port for polled reads. When the port supports read
// timeouts the poll timeout is applied once up front.
func NewPollingSource(port Porter) *PollingSource {
	if tp, ok := port.(TimeoutPorter); ok {
		// Best effort: a port that rejects the timeout still works, it
		// just blocks for the driver default instead.
		tp.SetReadTimeout(pollTimeout)
	}
	return &PollingSource{
		port: port,
		buf:  make([]byte, 4096),
	}
}

// ReadAvailable returns the bytes currently pending on the port. An empty
// return with nil error means no data arrived within the poll timeout.
// The returned slice aliases an internal buffer and is only valid until the
// next call.
func (s *PollingSource) ReadAvailable() ([]byte, error) {
	n, err := s.port.Read(s.buf)
	if n > 0 {
		return s.buf[:n], nil
	}
	return nil, err
}
