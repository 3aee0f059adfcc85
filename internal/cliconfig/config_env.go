package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (SCANSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("orchestrator-url", os.Getenv("SCANSHIP_ORCHESTRATOR_URL"), &cfg.OrchestratorURL)
	s.setString("device-id", os.Getenv("SCANSHIP_DEVICE_ID"), &cfg.DeviceID)
	s.setString("device-type", os.Getenv("SCANSHIP_DEVICE_TYPE"), &cfg.DeviceType)
	s.setString("team-id", os.Getenv("SCANSHIP_TEAM_ID"), &cfg.TeamID)
	s.setString("data-dir", os.Getenv("SCANSHIP_DATA_DIR"), &cfg.DataDir)
	s.setString("queue-path", os.Getenv("SCANSHIP_QUEUE_PATH"), &cfg.QueuePath)

	if err := s.setIntFromString("queue-capacity", os.Getenv("SCANSHIP_QUEUE_CAPACITY"), &cfg.QueueCapacity); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-max-bytes", os.Getenv("SCANSHIP_QUEUE_MAX_BYTES"), &cfg.QueueMaxBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("batch-size", os.Getenv("SCANSHIP_BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setIntFromString("max-batches", os.Getenv("SCANSHIP_MAX_BATCHES"), &cfg.MaxBatches); err != nil {
		return err
	}
	if err := s.setIntFromString("max-attempts", os.Getenv("SCANSHIP_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}

	if err := s.setDuration("check-interval", os.Getenv("SCANSHIP_CHECK_INTERVAL"), &cfg.CheckInterval); err != nil {
		return err
	}
	if err := s.setDuration("batch-delay", os.Getenv("SCANSHIP_BATCH_DELAY"), &cfg.BatchDelay); err != nil {
		return err
	}
	if err := s.setDuration("scan-timeout", os.Getenv("SCANSHIP_SCAN_TIMEOUT"), &cfg.ScanTimeout); err != nil {
		return err
	}
	if err := s.setDuration("batch-timeout", os.Getenv("SCANSHIP_BATCH_TIMEOUT"), &cfg.BatchTimeout); err != nil {
		return err
	}
	if err := s.setDuration("health-timeout", os.Getenv("SCANSHIP_HEALTH_TIMEOUT"), &cfg.HealthTimeout); err != nil {
		return err
	}

	s.setBoolFromString("once", os.Getenv("SCANSHIP_ONCE"), &cfg.Once)

	return nil
}
