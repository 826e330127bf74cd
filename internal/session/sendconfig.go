package session

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

// SendConfig reads the sensor configuration file and transmits it
// line-by-line over the control channel, pacing lines so the device UART
// input buffer keeps up. No acknowledgement is awaited and nothing is rolled
// back on failure: lines already sent stay sent.
//
// Valid while Connected or Capturing. Comment lines (leading '%', the TI
// .cfg convention) and blank lines are not transmitted.
func (c *Controller) SendConfig() error {
	c.mu.Lock()
	if c.state != StateConnected && c.state != StateCapturing {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ctrl := c.ctrl
	path := c.cfg.ConfigPath
	delay := c.cfg.ConfigLineDelay
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config source %s: %w", path, err)
	}
	defer f.Close()

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()

	sent := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		if _, err := ctrl.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("write config line %d: %w", sent+1, err)
		}
		sent++
		time.Sleep(delay)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read config source %s: %w", path, err)
	}

	monitoring.Logf("session: sent %d config lines from %s", sent, path)
	return nil
}

// SendCommand writes a single command line to the control channel, appending
// the newline the device expects. Valid while Connected, Capturing, or
// Paused. Used by the debug surface for ad hoc sensor commands
// (sensorStart, sensorStop, ...).
func (c *Controller) SendCommand(command string) error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateDisconnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ctrl := c.ctrl
	c.mu.Unlock()

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	n, err := ctrl.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	if n != len(command) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(command))
	}
	return nil
}
