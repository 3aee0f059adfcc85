package scanship

import (
	"fmt"
	"time"
)

// Config holds the configuration for the scan shipping agent.
// Use DefaultConfig() or SetDefaults() to fill sensible defaults; at
// minimum OrchestratorURL, DeviceID and QueuePath must be set.
type Config struct {
	// OrchestratorURL is the base URL of the orchestrator, without a
	// trailing slash.
	OrchestratorURL string

	// DeviceID identifies this device to the orchestrator.
	DeviceID string

	// DeviceType is stamped onto every scan record.
	DeviceType string

	// TeamID is the default team attributed to scans that carry none.
	// Optional; may be changed at runtime via config reload.
	TeamID string

	// ConfigPath is the config file watched for runtime changes.
	// Optional; empty disables the config watcher plugin.
	ConfigPath string

	// QueuePath is the durable queue file.
	QueuePath string

	// QueueCapacity bounds the queue; oldest entries are evicted at the
	// bound. Default 100.
	QueueCapacity int

	// QueueMaxBytes is the startup corruption threshold for the queue
	// file. Default 100KB.
	QueueMaxBytes int64

	// BatchSize is the number of records per drain upload. Default 10.
	BatchSize int

	// CheckInterval is the background health-check cadence. Default 10s.
	CheckInterval time.Duration

	// BatchDelay is the pause between drain iterations. Default 1s.
	BatchDelay time.Duration

	// MaxDrainBatches caps drain iterations per tick. Default 10.
	MaxDrainBatches int

	// ScanTimeout, BatchTimeout and HealthTimeout bound the individual
	// HTTP requests. Defaults 10s, 30s, 5s.
	ScanTimeout   time.Duration
	BatchTimeout  time.Duration
	HealthTimeout time.Duration

	// LockTimeout and LockRebuildTimeout bound storage lock acquisition
	// for appends and rebuild-class operations. Defaults 500ms and 2s.
	LockTimeout        time.Duration
	LockRebuildTimeout time.Duration

	// MaxAttempts is the retry budget per network operation. Default 6.
	MaxAttempts int

	// Once runs a single health-check/drain cycle and exits.
	Once bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.DeviceType == "" {
		c.DeviceType = "scanner"
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100
	}
	if c.QueueMaxBytes <= 0 {
		c.QueueMaxBytes = 100 << 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 1 * time.Second
	}
	if c.MaxDrainBatches <= 0 {
		c.MaxDrainBatches = 10
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 10 * time.Second
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 5 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 500 * time.Millisecond
	}
	if c.LockRebuildTimeout <= 0 {
		c.LockRebuildTimeout = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.OrchestratorURL == "" {
		return fmt.Errorf("orchestrator-url is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device-id is required")
	}
	if c.QueuePath == "" {
		return fmt.Errorf("queue-path is required")
	}

	// Ensure no trailing slash
	for len(c.OrchestratorURL) > 0 && c.OrchestratorURL[len(c.OrchestratorURL)-1] == '/' {
		c.OrchestratorURL = c.OrchestratorURL[:len(c.OrchestratorURL)-1]
	}

	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	return nil
}
