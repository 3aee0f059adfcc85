// Package connstate tracks the device's connectivity to the orchestrator.
//
// The state is a tri-state shared between the foreground submission path,
// the background sync loop and the link-event hooks. Transitions are not
// monotonic: link events and periodic health probes race, and the last
// write under the holder's lock wins.
package connstate

import "sync"

// State is the device's view of its path to the orchestrator.
type State int

const (
	// Disconnected means the network link is down.
	Disconnected State = iota
	// NetworkUp means the link is up but the orchestrator is unknown or down.
	NetworkUp
	// Reachable means the orchestrator answered a recent health check.
	Reachable
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case NetworkUp:
		return "NetworkUp"
	case Reachable:
		return "Reachable"
	default:
		return "Unknown"
	}
}

// HasNetwork reports whether the link is up, regardless of orchestrator health.
func (s State) HasNetwork() bool {
	return s == NetworkUp || s == Reachable
}

// Holder is a thread-safe container for the current State.
// The zero value is a valid holder in the Disconnected state.
type Holder struct {
	mu    sync.Mutex
	state State
}

// NewHolder creates a holder starting at Disconnected.
func NewHolder() *Holder {
	return &Holder{}
}

// Get returns the current state.
func (h *Holder) Get() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Set replaces the current state. Any transition is permitted.
func (h *Holder) Set(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// HasNetwork reports whether the current state has a network link.
func (h *Holder) HasNetwork() bool {
	return h.Get().HasNetwork()
}

// IsReachable reports whether the orchestrator is currently reachable.
func (h *Holder) IsReachable() bool {
	return h.Get() == Reachable
}
