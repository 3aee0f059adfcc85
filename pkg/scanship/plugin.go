package scanship

import (
	"context"

	"github.com/aln-labs/scanship/pkg/connstate"
	"github.com/aln-labs/scanship/pkg/lifecycle"
	"github.com/aln-labs/scanship/pkg/log"
)

// Plugin extends the agent with optional behavior (config watching,
// diagnostics). Plugins run in the agent's process and lifecycle.
type Plugin interface {
	// Name returns the plugin identifier for logging.
	Name() string

	// Initialize is called when the agent starts. The context is
	// cancelled when the agent stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called during agent stop, in reverse registration
	// order.
	Shutdown(ctx context.Context) error
}

// PluginConfig is the agent state handed to plugins at initialization.
type PluginConfig struct {
	ConfigPath      string
	OrchestratorURL string
	DeviceID        string
	TeamID          string
	QueuePath       string
	Logger          log.Logger

	// Updater accepts runtime configuration changes.
	Updater RuntimeUpdater
}

// RuntimeConfig carries the configuration fields that may change while
// the agent is running. Empty fields are left unchanged.
type RuntimeConfig struct {
	OrchestratorURL string
	TeamID          string
}

// RuntimeUpdater applies runtime configuration changes to a running agent.
type RuntimeUpdater interface {
	ApplyRuntimeConfig(rc RuntimeConfig)
}

// EventHandler receives agent events. All methods are called synchronously
// from agent goroutines; handlers must not block.
type EventHandler interface {
	OnStateChange(e StateChangeEvent)
	OnConnectionChange(e ConnectionChangeEvent)
	OnDrain(e DrainEvent)
}

// StateChangeEvent reports a lifecycle transition.
type StateChangeEvent struct {
	Previous lifecycle.State
	Current  lifecycle.State
	Reason   string
}

// ConnectionChangeEvent reports a connectivity transition.
type ConnectionChangeEvent struct {
	Previous connstate.State
	Current  connstate.State
}

// DrainEvent reports the outcome of a drain cycle.
type DrainEvent struct {
	Uploaded  int
	Remaining int
	Complete  bool
}
