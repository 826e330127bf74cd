// Package session owns the lifecycle of one sensor connection: the control
// and data serial channels, the capture loop bound to them, and the
// configuration hand-off to the device.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mmwave.report/internal/capture"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
	"github.com/banshee-data/mmwave.report/internal/serialio"
)

// State is the session lifecycle state. Transitions only happen inside the
// controller's public operations; an operation that fails leaves the state
// untouched.
type State int

const (
	// StateIdle: no channels open. The initial state.
	StateIdle State = iota
	// StateConnected: both channels open, no capture running.
	StateConnected
	// StateCapturing: capture worker active.
	StateCapturing
	// StatePaused: capture suspended (temperature protection), channels
	// still open, the consumer retained for Resume.
	StatePaused
	// StateDisconnected: the data channel failed underneath a running
	// capture and the controller closed both channels. Distinguished from
	// StateIdle so operators can tell a dropped sensor from a fresh start.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateCapturing:
		return "capturing"
	case StatePaused:
		return "paused"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrAlreadyCapturing = errors.New("session: capture already running")
	ErrNotCapturing     = errors.New("session: capture not running")
	ErrNotPaused        = errors.New("session: capture not paused")
)

// Config carries every externally-tunable knob of a session. There are no
// process-wide port constants; everything is injected here.
type Config struct {
	ControlPort    string               `json:"control_port"`
	DataPort       string               `json:"data_port"`
	ControlOptions serialio.PortOptions `json:"control_options"`
	DataOptions    serialio.PortOptions `json:"data_options"`

	// ConfigPath is the sensor .cfg file sent line-by-line by SendConfig.
	ConfigPath string `json:"config_path"`

	// ConfigLineDelay spaces configuration lines so the device input
	// buffer keeps up. Defaults to 10ms.
	ConfigLineDelay time.Duration `json:"-"`

	PollInterval time.Duration        `json:"-"`
	QueueDepth   int                  `json:"queue_depth"`
	MaxBuffer    int                  `json:"max_buffer_bytes"`
	TLVPolicy    mmwave.TLVPolicy     `json:"tlv_policy"`
	BufferPolicy capture.BufferPolicy `json:"buffer_policy"`
}

// Controller is the finite-state wrapper around the serial channels and the
// capture loop. All public operations are safe for concurrent use.
type Controller struct {
	cfg     Config
	factory serialio.Factory

	mu       sync.Mutex
	cfgMu    sync.Mutex // serialises config transmissions
	state    State
	ctrl     serialio.Porter
	data     serialio.Porter
	loop     *capture.Loop
	consumer capture.Consumer
	runID    uuid.UUID

	// capturing is the one flag shared with the telemetry task; it is
	// read without taking mu.
	capturing atomic.Bool
}

// NewController creates an idle controller. The factory is injected so tests
// run against scripted ports.
func NewController(cfg Config, factory serialio.Factory) *Controller {
	if cfg.ConfigLineDelay <= 0 {
		cfg.ConfigLineDelay = 10 * time.Millisecond
	}
	return &Controller{cfg: cfg, factory: factory}
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ports names the serial paths of the current (or most recent) connection.
type Ports struct {
	Control string `json:"control"`
	Data    string `json:"data"`
}

// Ports returns the connected port paths.
func (c *Controller) Ports() Ports {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Ports{Control: c.cfg.ControlPort, Data: c.cfg.DataPort}
}

// Capturing reports whether a capture worker is active. Lock-free; this is
// the accessor the telemetry task polls.
func (c *Controller) Capturing() bool {
	return c.capturing.Load()
}

// RunID returns the identifier of the current capture run and whether one is
// active or paused.
func (c *Controller) RunID() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID, c.state == StateCapturing || c.state == StatePaused
}

// Metrics returns the capture counters for the current or most recent run,
// nil before the first capture.
func (c *Controller) Metrics() *capture.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return nil
	}
	return c.loop.Metrics()
}

// Connect opens the control and data channels. Valid from Idle or
// Disconnected. On any open failure nothing stays open and the state does
// not change: there is no partial-connect state.
func (c *Controller) Connect(controlPort, dataPort string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle && c.state != StateDisconnected {
		return ErrAlreadyConnected
	}

	ctrl, err := c.factory.Open(controlPort, c.cfg.ControlOptions)
	if err != nil {
		return fmt.Errorf("open control channel %s: %w", controlPort, err)
	}
	data, err := c.factory.Open(dataPort, c.cfg.DataOptions)
	if err != nil {
		ctrl.Close()
		return fmt.Errorf("open data channel %s: %w", dataPort, err)
	}

	c.ctrl = ctrl
	c.data = data
	c.cfg.ControlPort = controlPort
	c.cfg.DataPort = dataPort
	c.state = StateConnected
	monitoring.Logf("session: connected control=%s data=%s", controlPort, dataPort)
	return nil
}

// Disconnect stops any running capture and closes both channels. Valid from
// any state except Idle; returns the session to Idle.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return ErrNotConnected
	}

	c.stopLoopLocked()
	err := c.closeChannelsLocked()
	c.consumer = nil
	c.state = StateIdle
	monitoring.Logf("session: disconnected")
	return err
}

// StartCapture spawns the capture worker bound to consumer. Valid only from
// Connected; a second call without an intervening StopCapture fails and
// leaves the single existing worker running.
func (c *Controller) StartCapture(consumer capture.Consumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateCapturing:
		return ErrAlreadyCapturing
	case StateConnected:
	default:
		return ErrNotConnected
	}

	c.runID = uuid.New()
	if err := c.startLoopLocked(consumer); err != nil {
		return err
	}
	monitoring.Logf("session: capture started run=%s", c.runID)
	return nil
}

// StopCapture stops the worker and discards any buffered partial frame.
// Valid from Capturing or Paused; returns the session to Connected.
func (c *Controller) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCapturing && c.state != StatePaused {
		return ErrNotCapturing
	}

	c.stopLoopLocked()
	c.consumer = nil
	c.state = StateConnected
	monitoring.Logf("session: capture stopped")
	return nil
}

// Pause suspends capture for temperature protection, retaining the consumer
// so Resume can rebind it. Valid only from Capturing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCapturing {
		return ErrNotCapturing
	}

	consumer := c.consumer
	c.stopLoopLocked()
	c.consumer = consumer
	c.state = StatePaused
	monitoring.Logf("session: capture paused")
	return nil
}

// Resume restarts capture after a Pause, under the same run ID.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return ErrNotPaused
	}

	if err := c.startLoopLocked(c.consumer); err != nil {
		return err
	}
	monitoring.Logf("session: capture resumed run=%s", c.runID)
	return nil
}

// startLoopLocked builds and starts a fresh capture loop. Caller holds mu
// and has validated the transition.
func (c *Controller) startLoopLocked(consumer capture.Consumer) error {
	var loop *capture.Loop
	loop, err := capture.NewLoop(capture.Options{
		Source:       serialio.NewPollingSource(c.data),
		Consumer:     consumer,
		PollInterval: c.cfg.PollInterval,
		QueueDepth:   c.cfg.QueueDepth,
		MaxBuffer:    c.cfg.MaxBuffer,
		TLVPolicy:    c.cfg.TLVPolicy,
		BufferPolicy: c.cfg.BufferPolicy,
		// The closure pins the loop identity so a stale worker's exit
		// cannot tear down a session that has since been restarted.
		OnExit: func(err error) { c.onLoopExit(loop, err) },
	})
	if err != nil {
		return err
	}
	if err := loop.Start(); err != nil {
		return err
	}

	c.loop = loop
	c.consumer = consumer
	c.state = StateCapturing
	c.capturing.Store(true)
	return nil
}

// stopLoopLocked stops the loop if one is running and clears the capturing
// flag. Caller holds mu.
func (c *Controller) stopLoopLocked() {
	if c.loop != nil {
		c.capturing.Store(false)
		c.loop.Stop()
	}
}

// closeChannelsLocked closes both serial channels, returning the first
// error. Caller holds mu.
func (c *Controller) closeChannelsLocked() error {
	var err error
	if c.ctrl != nil {
		if cerr := c.ctrl.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.ctrl = nil
	}
	if c.data != nil {
		if cerr := c.data.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.data = nil
	}
	return err
}

// onLoopExit runs when the capture worker terminates on its own: a data
// channel failure or a recovered panic. A requested Stop/Pause/Disconnect
// passes err == nil and has already handled the state change.
func (c *Controller) onLoopExit(from *capture.Loop, err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop != from {
		// A stale worker from a previous run; the session has moved on.
		return
	}

	// The worker is already gone; never leave the session claiming to
	// capture behind a dead channel.
	c.capturing.Store(false)
	if c.state != StateCapturing && c.state != StatePaused {
		return
	}
	c.closeChannelsLocked()
	c.consumer = nil
	c.state = StateDisconnected
	monitoring.Logf("session: capture worker failed, session disconnected: %v", err)
}
