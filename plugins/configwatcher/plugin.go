// Package configwatcher provides config file monitoring for scanship.
// When enabled, it watches the agent's config file and applies the fields
// that may change at runtime (orchestrator URL, team) to the running agent.
package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/aln-labs/scanship/pkg/log"
	"github.com/aln-labs/scanship/pkg/scanship"
)

// Plugin implements config watching functionality.
// It monitors the config file the agent was started from and pushes
// runtime-mutable fields to the agent when the file changes.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	debounceDelay time.Duration

	// Runtime state
	configPath string
	updater    scanship.RuntimeUpdater
	logger     log.Logger
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	debounce   *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before applying.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize sets up the plugin and starts the config watcher.
func (p *Plugin) Initialize(ctx context.Context, cfg scanship.PluginConfig) error {
	p.mu.Lock()
	p.configPath = cfg.ConfigPath
	p.updater = cfg.Updater
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.configPath == "" || p.updater == nil {
		p.logger.Warn("config watcher disabled: no config path")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher plugin initialized",
		log.String("path", p.configPath))

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// fileConfig is the subset of the TOML config that may change at runtime.
type fileConfig struct {
	OrchestratorURL string `toml:"orchestrator_url"`
	TeamID          string `toml:"team_id"`
}

// watchLoop watches for config file changes. It watches the containing
// directory rather than the file itself, since editors typically replace
// the file on save.
func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("config watcher: failed to create watcher", log.Err(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.configPath)); err != nil {
		p.logger.Error("config watcher: failed to watch directory", log.Err(err))
		return
	}

	target := filepath.Base(p.configPath)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceApply(p.debounceDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceApply(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.debounce = time.AfterFunc(delay, p.apply)
}

// apply reloads the config file and pushes the runtime fields to the agent.
// A file that is missing or unparseable mid-edit is skipped; the next write
// event retries.
func (p *Plugin) apply() {
	b, err := os.ReadFile(p.configPath)
	if err != nil {
		p.logger.Warn("config watcher: read config", log.Err(err))
		return
	}

	var fc fileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		p.logger.Warn("config watcher: parse config", log.Err(err))
		return
	}

	p.updater.ApplyRuntimeConfig(scanship.RuntimeConfig{
		OrchestratorURL: fc.OrchestratorURL,
		TeamID:          fc.TeamID,
	})
	p.logger.Info("config watcher: applied configuration update")
}

// Ensure Plugin implements scanship.Plugin.
var _ scanship.Plugin = (*Plugin)(nil)
