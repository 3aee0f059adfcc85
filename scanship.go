// Package scanship provides an embeddable agent that delivers scan events
// to an orchestrator, queueing them durably while the network is away.
//
// Example usage:
//
//	cfg := scanship.DefaultConfig()
//	cfg.OrchestratorURL = "http://orchestrator.local:3000"
//	cfg.DeviceID = "scanner-01"
//	cfg.QueuePath = "/data/queue.jsonl"
//	agent, err := scanship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := agent.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	agent.NetworkUp()
//	agent.Submit(scan.Record{TokenID: "a1b2c3", Timestamp: time.Now().UTC().Format(time.RFC3339)})
package scanship

import (
	"github.com/aln-labs/scanship/pkg/scan"
	"github.com/aln-labs/scanship/pkg/scanship"
)

// Config holds the configuration for the scan shipping agent.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = scanship.Config

// Agent is the per-device scan shipping agent.
type Agent = scanship.Agent

// Record is one captured scan event.
type Record = scan.Record

// Option configures optional behavior of an Agent.
type Option = scanship.Option

// State reports the agent lifecycle.
type State = scanship.State

// Lifecycle states.
const (
	StateStopped  = scanship.StateStopped
	StateStarting = scanship.StateStarting
	StateRunning  = scanship.StateRunning
	StateStopping = scanship.StateStopping
	StateCrashed  = scanship.StateCrashed
)

// New creates an Agent with the given configuration.
// At minimum, set OrchestratorURL, DeviceID and QueuePath.
func New(cfg Config, opts ...Option) (*Agent, error) {
	return scanship.New(cfg, opts...)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return scanship.DefaultConfig()
}

// Re-exported options.
var (
	WithLogger       = scanship.WithLogger
	WithHTTPClient   = scanship.WithHTTPClient
	WithEventHandler = scanship.WithEventHandler
	WithStorageLock  = scanship.WithStorageLock
	WithTokenStore   = scanship.WithTokenStore
	WithPlugin       = scanship.WithPlugin
)
