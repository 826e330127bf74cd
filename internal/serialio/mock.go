package serialio

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by test ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestPort implements TimeoutPorter with configurable behaviour for testing:
// scripted read data, captured writes, and injectable errors.
type TestPort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// ReadError is returned by the next Read call if set, then cleared.
	ReadError error

	// WriteError is returned by the next Write call if set, then cleared.
	WriteError error

	// CloseError is returned by Close if set.
	CloseError error

	closed      bool
	readTimeout time.Duration
	writeCalls  int
}

// NewTestPort creates an empty TestPort.
func NewTestPort() *TestPort {
	return &TestPort{}
}

// Read drains pending scripted data. An empty buffer reads as zero bytes
// with no error, matching a serial port read that hit its timeout.
func (t *TestPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.readBuf.Len() == 0 {
		return 0, nil
	}
	return t.readBuf.Read(p)
}

// Write captures data written to the port.
func (t *TestPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.writeCalls++
	if t.closed {
		return 0, ErrPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	return t.writeBuf.Write(p)
}

// Close marks the port as closed.
func (t *TestPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutPorter.
func (t *TestPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readTimeout = timeout
	return nil
}

// AddReadData appends data to be returned by subsequent Read calls.
func (t *TestPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf.Write(data)
}

// WrittenData returns all data written to the port.
func (t *TestPort) WrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.writeBuf.Bytes()...)
}

// WriteCalls reports how many times Write was called.
func (t *TestPort) WriteCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeCalls
}

// Closed reports whether Close was called.
func (t *TestPort) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// MockFactory implements Factory for testing and records every Open call.
type MockFactory struct {
	mu sync.Mutex

	// Ports maps port paths to the port returned for that path. Paths not
	// present fall back to Port.
	Ports map[string]Porter

	// Port is the default port to return from Open.
	Port Porter

	// Err is returned by Open if set.
	Err error

	opened []string
}

// Open returns the configured port or error for the given path.
func (f *MockFactory) Open(path string, opts PortOptions) (Porter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, path)
	if f.Err != nil {
		return nil, f.Err
	}
	if p, ok := f.Ports[path]; ok {
		return p, nil
	}
	if f.Port == nil {
		return nil, errors.New("mock factory has no port configured")
	}
	return f.Port, nil
}

// Opened returns the paths passed to Open, in call order.
func (f *MockFactory) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// ReplayPort replays a recorded byte stream in fixed-size chunks, one chunk
// per interval, looping when the stream is exhausted. It backs the dev mode
// of the service so the capture pipeline can run without sensor hardware.
// Writes (commands, configuration lines) are captured and discarded.
type ReplayPort struct {
	mu        sync.Mutex
	stream    []byte
	pos       int
	chunk     int
	interval  time.Duration
	nextReady time.Time
	writeBuf  bytes.Buffer
	closed    bool
}

// NewReplayPort creates a ReplayPort over stream releasing chunkSize bytes
// every interval.
func NewReplayPort(stream []byte, chunkSize int, interval time.Duration) *ReplayPort {
	if chunkSize <= 0 {
		chunkSize = 256
	}
	return &ReplayPort{
		stream:   stream,
		chunk:    chunkSize,
		interval: interval,
	}
}

// Read returns the next chunk once the interval has elapsed, zero bytes
// otherwise.
func (r *ReplayPort) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrPortClosed
	}
	if len(r.stream) == 0 {
		return 0, nil
	}

	now := time.Now()
	if now.Before(r.nextReady) {
		return 0, nil
	}
	r.nextReady = now.Add(r.interval)

	end := r.pos + r.chunk
	if end > len(r.stream) {
		end = len(r.stream)
	}
	n := copy(p, r.stream[r.pos:end])
	r.pos += n
	if r.pos >= len(r.stream) {
		r.pos = 0
	}
	return n, nil
}

// Write captures and discards command bytes.
func (r *ReplayPort) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrPortClosed
	}
	return r.writeBuf.Write(p)
}

// Close marks the port as closed.
func (r *ReplayPort) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
