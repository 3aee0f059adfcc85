package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"SCANSHIP_ORCHESTRATOR_URL": "http://env-orch",
				"SCANSHIP_DEVICE_ID":        "env-device",
				"SCANSHIP_QUEUE_CAPACITY":   "300",
				"SCANSHIP_CHECK_INTERVAL":   "45s",
				"SCANSHIP_ONCE":             "true",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				OrchestratorURL: "http://env-orch",
				DeviceID:        "env-device",
				QueueCapacity:   300,
				CheckInterval:   45 * time.Second,
				Once:            true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"SCANSHIP_ORCHESTRATOR_URL": "http://env-orch",
				"SCANSHIP_DEVICE_ID":        "env-device",
			},
			changed: map[string]bool{"orchestrator-url": true},
			initial: Config{OrchestratorURL: "http://flag-orch"},
			expected: Config{
				OrchestratorURL: "http://flag-orch",
				DeviceID:        "env-device",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"SCANSHIP_CHECK_INTERVAL": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "returns error for invalid int",
			envVars: map[string]string{
				"SCANSHIP_BATCH_SIZE": "ten",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
