package cliconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultQueueFileName is the queue file created under the data directory
// when no explicit queue path is given.
const DefaultQueueFileName = "queue.jsonl"

// Config holds CLI configuration for scanship.
type Config struct {
	OrchestratorURL string
	DeviceID        string
	DeviceType      string
	TeamID          string

	DataDir   string
	QueuePath string

	QueueCapacity int
	QueueMaxBytes int
	BatchSize     int
	MaxBatches    int
	MaxAttempts   int

	CheckInterval time.Duration
	BatchDelay    time.Duration
	ScanTimeout   time.Duration
	BatchTimeout  time.Duration
	HealthTimeout time.Duration

	Once       bool
	ClearQueue bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DeviceType:    "scanner",
		QueueCapacity: 100,
		QueueMaxBytes: 100 << 10, // 100KB
		BatchSize:     10,
		MaxBatches:    10,
		MaxAttempts:   6,
		CheckInterval: 10 * time.Second,
		BatchDelay:    1 * time.Second,
		ScanTimeout:   10 * time.Second,
		BatchTimeout:  30 * time.Second,
		HealthTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.OrchestratorURL == "" {
		return fmt.Errorf("orchestrator-url is required")
	}

	if c.QueuePath == "" {
		if c.DataDir == "" {
			return fmt.Errorf("queue-path is required (or data-dir)")
		}
		c.QueuePath = filepath.Join(c.DataDir, DefaultQueueFileName)
	}

	// Ensure no trailing slash
	if len(c.OrchestratorURL) > 0 && c.OrchestratorURL[len(c.OrchestratorURL)-1] == '/' {
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

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
