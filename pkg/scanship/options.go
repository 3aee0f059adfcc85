package scanship

import (
	"context"
	"net/http"

	"github.com/aln-labs/scanship/pkg/log"
	"github.com/aln-labs/scanship/pkg/queue"
	"github.com/aln-labs/scanship/pkg/sender"
)

// Option configures optional behavior of an Agent.
type Option func(*options)

// TokenStore receives the orchestrator's token database after a sync.
type TokenStore func(ctx context.Context, data []byte) error

// options holds the optional configuration for an Agent.
type options struct {
	httpClient   sender.HTTPClient
	logger       log.Logger
	eventHandler EventHandler
	plugins      []Plugin
	storageLock  queue.Locker
	tokenStore   TokenStore
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		httpClient: &http.Client{},
		logger:     log.NewNoopLogger(),
	}
}

// WithHTTPClient sets a custom HTTP client for orchestrator communication.
func WithHTTPClient(client sender.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger. The default discards all output.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for agent events. Events are delivered
// synchronously from the goroutine that produced them.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithStorageLock supplies the lock guarding the persistent-storage
// resource the queue file lives on. Components sharing that storage must
// share one Locker. The default is a lock private to the queue.
func WithStorageLock(lock queue.Locker) Option {
	return func(o *options) {
		o.storageLock = lock
	}
}

// WithTokenStore sets the sink for the orchestrator's token database. When
// set, the agent syncs the token database once per run, the first time the
// orchestrator becomes reachable, and retries on later cycles until the
// store accepts it.
func WithTokenStore(store TokenStore) Option {
	return func(o *options) {
		o.tokenStore = store
	}
}

// WithPlugin registers a plugin to be initialized when the agent starts.
// Plugins are initialized in registration order and shut down in reverse.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}
