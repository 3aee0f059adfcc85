package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aln-labs/scanship/pkg/log"
	"github.com/aln-labs/scanship/pkg/scanship"
)

// fakeUpdater records runtime config pushes.
type fakeUpdater struct {
	mu      sync.Mutex
	applied []scanship.RuntimeConfig
}

func (f *fakeUpdater) ApplyRuntimeConfig(rc scanship.RuntimeConfig) {
	f.mu.Lock()
	f.applied = append(f.applied, rc)
	f.mu.Unlock()
}

func (f *fakeUpdater) last() (scanship.RuntimeConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applied) == 0 {
		return scanship.RuntimeConfig{}, false
	}
	return f.applied[len(f.applied)-1], true
}

func TestPlugin_AppliesConfigChange(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(`orchestrator_url = "http://old"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	updater := &fakeUpdater{}
	plugin := New(Config{DebounceDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := plugin.Initialize(ctx, scanship.PluginConfig{
		ConfigPath: cfgPath,
		Logger:     log.NewNoopLogger(),
		Updater:    updater,
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer plugin.Shutdown(context.Background())

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)

	update := `
orchestrator_url = "http://new"
team_id = "team-3"
`
	if err := os.WriteFile(cfgPath, []byte(update), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rc, ok := updater.last(); ok {
			if rc.OrchestratorURL != "http://new" {
				t.Errorf("OrchestratorURL = %s, want http://new", rc.OrchestratorURL)
			}
			if rc.TeamID != "team-3" {
				t.Errorf("TeamID = %s, want team-3", rc.TeamID)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("updater never called after config change")
}

func TestPlugin_DisabledWithoutConfigPath(t *testing.T) {
	plugin := New(DefaultConfig())

	err := plugin.Initialize(context.Background(), scanship.PluginConfig{
		Logger:  log.NewNoopLogger(),
		Updater: &fakeUpdater{},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := plugin.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestPlugin_Name(t *testing.T) {
	if got := New(DefaultConfig()).Name(); got != "configwatcher" {
		t.Errorf("Name() = %s, want configwatcher", got)
	}
}
