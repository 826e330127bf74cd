package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

// ByteSource yields the bytes currently pending on the sensor data channel.
type ByteSource interface {
	// ReadAvailable returns zero or more bytes without blocking beyond a
	// short poll timeout. A non-nil error means the channel has failed and
	// no further reads will succeed.
	ReadAvailable() ([]byte, error)
}

// Consumer receives one decoded frame. Points are already filtered and in
// wire order. The consumer runs on the dispatch goroutine, never on the
// capture worker.
type Consumer func(frame mmwave.Frame)

// BufferPolicy selects what happens to the byte buffer after a decode
// attempt on a located sync marker.
type BufferPolicy int

const (
	// BufferClearAll empties the whole buffer after every completed decode
	// attempt, matching the sensor's reference reader. Any bytes of a
	// subsequent frame already buffered are lost with it; frames fully
	// contained behind a decoded frame are never delivered.
	BufferClearAll BufferPolicy = iota

	// BufferConsumeDecoded discards only the bytes the decoded frame
	// occupied, preserving any trailing bytes for the next iteration.
	BufferConsumeDecoded
)

func (p BufferPolicy) String() string {
	switch p {
	case BufferClearAll:
		return "clear-all"
	case BufferConsumeDecoded:
		return "consume-decoded"
	default:
		return "unknown"
	}
}

// DefaultPollInterval is the sleep between polls, bounding CPU usage when
// the data channel is idle.
const DefaultPollInterval = 10 * time.Millisecond

// DefaultQueueDepth is the frame hand-off queue capacity.
const DefaultQueueDepth = 64

// ErrAlreadyRunning is returned by Start when the loop is active.
var ErrAlreadyRunning = errors.New("capture loop already running")

// Options configures a capture loop.
type Options struct {
	Source       ByteSource
	Consumer     Consumer
	PollInterval time.Duration // defaults to DefaultPollInterval
	QueueDepth   int           // defaults to DefaultQueueDepth
	MaxBuffer    int           // defaults to DefaultMaxBuffer
	TLVPolicy    mmwave.TLVPolicy
	BufferPolicy BufferPolicy

	// OnExit, if set, is called exactly once when the worker terminates,
	// with nil after a requested Stop or the terminating error otherwise.
	OnExit func(err error)
}

// Loop polls a byte source, decodes frames, and dispatches them to the
// consumer. The buffer and decode pipeline run on one dedicated worker
// goroutine; the consumer runs on a second dispatch goroutine fed through a
// bounded channel.
type Loop struct {
	opts    Options
	running atomic.Bool
	metrics Metrics

	mu sync.Mutex // guards start/stop transitions
	wg sync.WaitGroup
}

// NewLoop creates a stopped loop. Source and Consumer are required.
func NewLoop(opts Options) (*Loop, error) {
	if opts.Source == nil {
		return nil, errors.New("capture: byte source is required")
	}
	if opts.Consumer == nil {
		return nil, errors.New("capture: consumer is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	return &Loop{opts: opts}, nil
}

// Metrics exposes the loop's counters. Safe to read while running.
func (l *Loop) Metrics() *Metrics {
	return &l.metrics
}

// Running reports whether the worker is active. Readable from any
// goroutine; this is the flag the telemetry task samples.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Start spawns the capture worker and frame dispatcher. Returns
// ErrAlreadyRunning if the loop is active: there is never more than one
// worker per loop.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	queue := make(chan mmwave.Frame, l.opts.QueueDepth)

	l.wg.Add(2)
	go l.dispatch(queue)
	go l.run(queue)
	return nil
}

// Stop signals the worker to exit and waits for both goroutines to finish.
// Whatever partial frame was buffered is discarded, not preserved across a
// stop/restart cycle. Stopping a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.running.Store(false)
	l.wg.Wait()
}

// dispatch drains the frame queue and invokes the consumer, preserving
// decode order.
func (l *Loop) dispatch(queue <-chan mmwave.Frame) {
	defer l.wg.Done()
	for frame := range queue {
		l.opts.Consumer(frame)
	}
}

// run is the capture worker. It owns the accumulator exclusively; no other
// goroutine touches the buffer, so no locking is needed around it.
func (l *Loop) run(queue chan<- mmwave.Frame) {
	var exitErr error

	defer func() {
		if r := recover(); r != nil {
			exitErr = fmt.Errorf("capture worker panic: %v", r)
			monitoring.Logf("capture: %v", exitErr)
		}
		// The flag resets on every exit path so a failed worker never
		// leaves the session claiming to capture.
		l.running.Store(false)
		close(queue)
		l.wg.Done()
		if l.opts.OnExit != nil {
			l.opts.OnExit(exitErr)
		}
	}()

	acc := NewAccumulator(l.opts.MaxBuffer)
	var lastDiscarded int64

	for l.running.Load() {
		data, err := l.opts.Source.ReadAvailable()
		if err != nil {
			exitErr = fmt.Errorf("data channel read: %w", err)
			monitoring.Logf("capture: %v", exitErr)
			return
		}
		if len(data) > 0 {
			l.metrics.BytesRead.Add(int64(len(data)))
			acc.Append(data)
			if d := acc.DiscardedBytes(); d != lastDiscarded {
				l.metrics.BufferOverflow.Add(d - lastDiscarded)
				lastDiscarded = d
			}
		}

		if off := acc.LocateSync(); off >= 0 {
			l.decodeAt(acc, off, queue)
		}

		time.Sleep(l.opts.PollInterval)
	}
}

// decodeAt runs one decode attempt at the located sync offset and applies
// the buffer policy. An incomplete header or TLV header leaves the buffer
// untouched so the next poll can complete it.
func (l *Loop) decodeAt(acc *Accumulator, off int, queue chan<- mmwave.Frame) {
	frame, err := mmwave.DecodeFrame(acc.Bytes(), off, l.opts.TLVPolicy)
	switch {
	case errors.Is(err, mmwave.ErrNeedMoreData):
		return
	case errors.Is(err, mmwave.ErrCorruptFrame):
		l.metrics.FramesCorrupt.Add(1)
		if l.opts.BufferPolicy == BufferConsumeDecoded {
			// Skip just past the marker so the search resumes at the
			// next candidate frame.
			acc.Discard(off + mmwave.SyncSize)
		} else {
			acc.Clear()
		}
		return
	case err != nil:
		// No other decode errors exist today; treat an unknown one as a
		// dropped frame rather than crashing the worker.
		monitoring.Logf("capture: unexpected decode error: %v", err)
		l.metrics.FramesCorrupt.Add(1)
		acc.Clear()
		return
	}

	l.metrics.FramesDecoded.Add(1)
	l.metrics.PointsDecoded.Add(int64(len(frame.Points)))

	if l.opts.BufferPolicy == BufferConsumeDecoded {
		acc.Discard(off + mmwave.PointDataOff + len(frame.Points)*mmwave.PointSize)
	} else {
		acc.Clear()
	}

	filtered := mmwave.FilterZero(frame.Points)
	l.metrics.PointsFiltered.Add(int64(len(frame.Points) - len(filtered)))
	if len(filtered) == 0 {
		l.metrics.FramesEmpty.Add(1)
		return
	}
	frame.Points = filtered

	select {
	case queue <- frame:
	default:
		// A full queue means the consumer is behind; dropping here keeps
		// the polling cadence intact, which is the whole point of the
		// bounded hand-off.
		l.metrics.FramesDropped.Add(1)
	}
}
