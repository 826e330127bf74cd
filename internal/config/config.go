// Package config loads the service configuration. A single JSON file carries
// every tunable; flags in main may override the file. Fields omitted from
// the JSON keep their defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/mmwave.report/internal/capture"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/serialio"
	"github.com/banshee-data/mmwave.report/internal/session"
)

// Config is the root service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `json:"listen,omitempty"`

	// DBPath is the SQLite database file; MigrationsDir holds the schema
	// migrations applied at startup.
	DBPath        string `json:"db_path,omitempty"`
	MigrationsDir string `json:"migrations_dir,omitempty"`

	// ControlPort and DataPort are the sensor serial device paths.
	ControlPort string `json:"control_port,omitempty"`
	DataPort    string `json:"data_port,omitempty"`

	ControlOptions serialio.PortOptions `json:"control_options,omitempty"`
	DataOptions    serialio.PortOptions `json:"data_options,omitempty"`

	// SensorConfigPath is the .cfg file transmitted by sendConfig.
	SensorConfigPath string `json:"sensor_config_path,omitempty"`

	// ConfigLineDelayMs paces sensor config lines. Defaults to 10.
	ConfigLineDelayMs int `json:"config_line_delay_ms,omitempty"`

	// PollIntervalMs is the capture loop cadence. Defaults to 10.
	PollIntervalMs int `json:"poll_interval_ms,omitempty"`

	QueueDepth     int `json:"queue_depth,omitempty"`
	MaxBufferBytes int `json:"max_buffer_bytes,omitempty"`

	// TLVPolicy is "accept-any" (default) or "require-pointcloud".
	TLVPolicy string `json:"tlv_policy,omitempty"`

	// BufferPolicy is "clear-all" (default, matches the reference reader)
	// or "consume-decoded".
	BufferPolicy string `json:"buffer_policy,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:            ":8080",
		DBPath:            "mmwave.db",
		MigrationsDir:     "internal/db/migrations",
		ControlOptions:    serialio.ControlPortOptions(),
		DataOptions:       serialio.DataPortOptions(),
		SensorConfigPath:  "sensor.cfg",
		ConfigLineDelayMs: 10,
		PollIntervalMs:    10,
		QueueDepth:        capture.DefaultQueueDepth,
		MaxBufferBytes:    capture.DefaultMaxBuffer,
		TLVPolicy:         "accept-any",
		BufferPolicy:      "clear-all",
	}
}

// Load reads a JSON config file over the defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.PollIntervalMs < 0 {
		return fmt.Errorf("poll_interval_ms must be non-negative")
	}
	if c.ConfigLineDelayMs < 0 {
		return fmt.Errorf("config_line_delay_ms must be non-negative")
	}
	if _, err := c.tlvPolicy(); err != nil {
		return err
	}
	if _, err := c.bufferPolicy(); err != nil {
		return err
	}
	if _, err := c.ControlOptions.Normalize(); err != nil {
		return fmt.Errorf("control_options: %w", err)
	}
	if _, err := c.DataOptions.Normalize(); err != nil {
		return fmt.Errorf("data_options: %w", err)
	}
	return nil
}

func (c *Config) tlvPolicy() (mmwave.TLVPolicy, error) {
	switch c.TLVPolicy {
	case "", "accept-any":
		return mmwave.TLVAcceptAny, nil
	case "require-pointcloud":
		return mmwave.TLVRequirePointCloud, nil
	default:
		return 0, fmt.Errorf("unknown tlv_policy %q", c.TLVPolicy)
	}
}

func (c *Config) bufferPolicy() (capture.BufferPolicy, error) {
	switch c.BufferPolicy {
	case "", "clear-all":
		return capture.BufferClearAll, nil
	case "consume-decoded":
		return capture.BufferConsumeDecoded, nil
	default:
		return 0, fmt.Errorf("unknown buffer_policy %q", c.BufferPolicy)
	}
}

// Session converts the service config into the session controller's
// configuration. Call Validate first.
func (c *Config) Session() session.Config {
	tlv, _ := c.tlvPolicy()
	buf, _ := c.bufferPolicy()
	return session.Config{
		ControlPort:     c.ControlPort,
		DataPort:        c.DataPort,
		ControlOptions:  c.ControlOptions,
		DataOptions:     c.DataOptions,
		ConfigPath:      c.SensorConfigPath,
		ConfigLineDelay: time.Duration(c.ConfigLineDelayMs) * time.Millisecond,
		PollInterval:    time.Duration(c.PollIntervalMs) * time.Millisecond,
		QueueDepth:      c.QueueDepth,
		MaxBuffer:       c.MaxBufferBytes,
		TLVPolicy:       tlv,
		BufferPolicy:    buf,
	}
}
