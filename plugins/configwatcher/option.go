package configwatcher

import "github.com/aln-labs/scanship/pkg/scanship"

// WithConfigWatcher returns a scanship Option that enables config file
// watching. The plugin monitors the agent's config file and applies
// runtime-mutable fields (orchestrator URL, team) on change.
//
// Usage:
//
//	agent, err := scanship.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) scanship.Option {
	plugin := New(cfg)
	return scanship.WithPlugin(plugin)
}

// WithDefaultConfigWatcher returns a scanship Option that enables config
// watching with default settings (debounce 100ms).
//
// Usage:
//
//	agent, err := scanship.New(cfg, configwatcher.WithDefaultConfigWatcher())
func WithDefaultConfigWatcher() scanship.Option {
	return WithConfigWatcher(DefaultConfig())
}
