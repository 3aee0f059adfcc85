package cliconfig

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.QueueCapacity != 100 {
		t.Errorf("QueueCapacity = %d, want 100", cfg.QueueCapacity)
	}
	if cfg.QueueMaxBytes != 100<<10 {
		t.Errorf("QueueMaxBytes = %d, want %d", cfg.QueueMaxBytes, 100<<10)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.CheckInterval != 10*time.Second {
		t.Errorf("CheckInterval = %v, want 10s", cfg.CheckInterval)
	}
	if cfg.MaxAttempts != 6 {
		t.Errorf("MaxAttempts = %d, want 6", cfg.MaxAttempts)
	}
	if cfg.DeviceType != "scanner" {
		t.Errorf("DeviceType = %s, want scanner", cfg.DeviceType)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing orchestrator url",
			mutate:  func(c *Config) { c.OrchestratorURL = "" },
			wantErr: true,
		},
		{
			name:    "missing queue path and data dir",
			mutate:  func(c *Config) { c.QueuePath = ""; c.DataDir = "" },
			wantErr: true,
		},
		{
			name:    "zero check interval",
			mutate:  func(c *Config) { c.CheckInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.OrchestratorURL = "http://orch"
			cfg.QueuePath = "/data/queue.jsonl"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateDerivesQueuePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OrchestratorURL = "http://orch"
	cfg.DataDir = "/data"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if want := filepath.Join("/data", DefaultQueueFileName); cfg.QueuePath != want {
		t.Errorf("QueuePath = %s, want %s", cfg.QueuePath, want)
	}
}

func TestConfig_ValidateTrimsTrailingSlash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OrchestratorURL = "http://orch/"
	cfg.QueuePath = "/data/queue.jsonl"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.OrchestratorURL != "http://orch" {
		t.Errorf("OrchestratorURL = %s, want http://orch", cfg.OrchestratorURL)
	}
}

func TestConfigSetter_RespectsChangedFlags(t *testing.T) {
	s := newConfigSetter(map[string]bool{"device-id": true})

	dst := "flag-value"
	s.setString("device-id", "file-value", &dst)
	if dst != "flag-value" {
		t.Errorf("changed flag overwritten: %s", dst)
	}

	other := ""
	s.setString("team-id", "file-value", &other)
	if other != "file-value" {
		t.Errorf("unchanged flag not applied: %s", other)
	}
}

func TestConfigSetter_Parsing(t *testing.T) {
	s := newConfigSetter(map[string]bool{})

	var d time.Duration
	if err := s.setDuration("check-interval", "15s", &d); err != nil {
		t.Fatalf("setDuration() error = %v", err)
	}
	if d != 15*time.Second {
		t.Errorf("duration = %v, want 15s", d)
	}
	if err := s.setDuration("check-interval", "nope", &d); err == nil {
		t.Error("setDuration() accepted garbage")
	}

	var i int
	if err := s.setIntFromString("batch-size", "25", &i); err != nil {
		t.Fatalf("setIntFromString() error = %v", err)
	}
	if i != 25 {
		t.Errorf("int = %d, want 25", i)
	}
	if err := s.setIntFromString("batch-size", "-3", &i); err != nil {
		t.Fatalf("setIntFromString() error = %v", err)
	}
	if i != 25 {
		t.Errorf("non-positive value applied: %d", i)
	}

	var b bool
	s.setBoolFromString("once", "1", &b)
	if !b {
		t.Error("setBoolFromString(\"1\") = false")
	}
	s.setBoolFromString("once", "no", &b)
	if b {
		t.Error("setBoolFromString(\"no\") = true")
	}
}
