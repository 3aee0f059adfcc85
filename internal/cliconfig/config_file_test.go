package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	path := writeConfigFile(t, `
orchestrator_url = "http://orch:3000"
device_id = "scanner-01"
team_id = "team-4"
queue_capacity = 200
check_interval = "30s"
once = true
`)

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}
	if fc.OrchestratorURL != "http://orch:3000" {
		t.Errorf("OrchestratorURL = %s", fc.OrchestratorURL)
	}
	if fc.DeviceID != "scanner-01" {
		t.Errorf("DeviceID = %s", fc.DeviceID)
	}
	if fc.QueueCapacity != 200 {
		t.Errorf("QueueCapacity = %d", fc.QueueCapacity)
	}
	if fc.CheckInterval != "30s" {
		t.Errorf("CheckInterval = %s", fc.CheckInterval)
	}
	if fc.Once == nil || !*fc.Once {
		t.Error("Once not parsed as true")
	}
}

func TestLoadFileConfig_Invalid(t *testing.T) {
	path := writeConfigFile(t, `orchestrator_url = [broken`)
	if _, err := LoadFileConfig(path); err == nil {
		t.Error("LoadFileConfig() accepted invalid TOML")
	}
}

func TestLoadFileConfig_Missing(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("LoadFileConfig() succeeded for missing file")
	}
}

func TestApplyFileConfig(t *testing.T) {
	tests := []struct {
		name    string
		fc      FileConfig
		changed map[string]bool
		initial Config
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "applies values",
			fc: FileConfig{
				OrchestratorURL: "http://orch",
				DeviceID:        "scanner-01",
				QueueCapacity:   250,
				CheckInterval:   "20s",
				BatchDelay:      "500ms",
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				if cfg.OrchestratorURL != "http://orch" {
					t.Errorf("OrchestratorURL = %s", cfg.OrchestratorURL)
				}
				if cfg.QueueCapacity != 250 {
					t.Errorf("QueueCapacity = %d", cfg.QueueCapacity)
				}
				if cfg.CheckInterval != 20*time.Second {
					t.Errorf("CheckInterval = %v", cfg.CheckInterval)
				}
				if cfg.BatchDelay != 500*time.Millisecond {
					t.Errorf("BatchDelay = %v", cfg.BatchDelay)
				}
			},
		},
		{
			name: "respects changed flags",
			fc: FileConfig{
				DeviceID: "from-file",
			},
			changed: map[string]bool{"device-id": true},
			initial: Config{DeviceID: "from-flag"},
			check: func(t *testing.T, cfg Config) {
				if cfg.DeviceID != "from-flag" {
					t.Errorf("DeviceID = %s, want from-flag", cfg.DeviceID)
				}
			},
		},
		{
			name:    "bad duration",
			fc:      FileConfig{CheckInterval: "soon"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fc, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestFileExists(t *testing.T) {
	path := writeConfigFile(t, "")
	if !FileExists(path) {
		t.Error("FileExists() = false for existing file")
	}
	if FileExists(filepath.Join(t.TempDir(), "nope.toml")) {
		t.Error("FileExists() = true for missing file")
	}
}
