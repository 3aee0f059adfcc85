package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	OrchestratorURL string `toml:"orchestrator_url"`
	DeviceID        string `toml:"device_id"`
	DeviceType      string `toml:"device_type"`
	TeamID          string `toml:"team_id"`
	DataDir         string `toml:"data_dir"`
	QueuePath       string `toml:"queue_path"`
	QueueCapacity   int    `toml:"queue_capacity"`
	QueueMaxBytes   int    `toml:"queue_max_bytes"`
	BatchSize       int    `toml:"batch_size"`
	MaxBatches      int    `toml:"max_batches"`
	MaxAttempts     int    `toml:"max_attempts"`
	CheckInterval   string `toml:"check_interval"`
	BatchDelay      string `toml:"batch_delay"`
	ScanTimeout     string `toml:"scan_timeout"`
	BatchTimeout    string `toml:"batch_timeout"`
	HealthTimeout   string `toml:"health_timeout"`
	Once            *bool  `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.scanship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".scanship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("orchestrator-url", fc.OrchestratorURL, &cfg.OrchestratorURL)
	s.setString("device-id", fc.DeviceID, &cfg.DeviceID)
	s.setString("device-type", fc.DeviceType, &cfg.DeviceType)
	s.setString("team-id", fc.TeamID, &cfg.TeamID)
	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("queue-path", fc.QueuePath, &cfg.QueuePath)

	s.setInt("queue-capacity", fc.QueueCapacity, &cfg.QueueCapacity)
	s.setInt("queue-max-bytes", fc.QueueMaxBytes, &cfg.QueueMaxBytes)
	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("max-batches", fc.MaxBatches, &cfg.MaxBatches)
	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)

	if err := s.setDuration("check-interval", fc.CheckInterval, &cfg.CheckInterval); err != nil {
		return err
	}
	if err := s.setDuration("batch-delay", fc.BatchDelay, &cfg.BatchDelay); err != nil {
		return err
	}
	if err := s.setDuration("scan-timeout", fc.ScanTimeout, &cfg.ScanTimeout); err != nil {
		return err
	}
	if err := s.setDuration("batch-timeout", fc.BatchTimeout, &cfg.BatchTimeout); err != nil {
		return err
	}
	if err := s.setDuration("health-timeout", fc.HealthTimeout, &cfg.HealthTimeout); err != nil {
		return err
	}

	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
