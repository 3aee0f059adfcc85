// Package scanship provides the embeddable scan shipping agent: the
// single entry point the device's foreground code uses to submit scan
// records, backed by a durable offline queue and a background sync task.
//
// One Agent exists per device. The foreground calls Submit; the
// background task health-checks the orchestrator on a fixed interval and
// drains the queue when it is reachable. Both share the queue through its
// storage lock, so either side may run at any time.
package scanship

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aln-labs/scanship/pkg/connstate"
	"github.com/aln-labs/scanship/pkg/lifecycle"
	"github.com/aln-labs/scanship/pkg/log"
	"github.com/aln-labs/scanship/pkg/queue"
	"github.com/aln-labs/scanship/pkg/scan"
	"github.com/aln-labs/scanship/pkg/sender"
)

// Lifecycle states, re-exported for embedders.
type State = lifecycle.State

const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// Common agent errors.
var (
	ErrAlreadyRunning = lifecycle.ErrAlreadyRunning
	ErrNotRunning     = lifecycle.ErrNotRunning
)

// Agent is the per-device orchestrator client. Use New() to create an
// instance, then Start() to begin background syncing.
type Agent struct {
	config    Config
	opts      options
	lifecycle *lifecycle.Manager
	queue     *queue.Queue
	sender    *sender.Client
	conn      *connstate.Holder
	logger    log.Logger
	plugins   []Plugin

	// teamID may be replaced by config reload while scans are flowing.
	teamMu sync.RWMutex
	teamID string

	// drainMu keeps the ticker and ForceDrain from draining concurrently.
	drainMu sync.Mutex

	// tokensSynced flips once the token store accepts a sync this run.
	tokensSynced bool

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	pluginShutdown sync.Once
}

// New creates an Agent with the given configuration.
// The instance is created in StateStopped; call Start() to begin syncing.
func New(cfg Config, opts ...Option) (*Agent, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger

	a := &Agent{
		config:  cfg,
		opts:    o,
		conn:    connstate.NewHolder(),
		logger:  logger,
		plugins: o.plugins,
		teamID:  cfg.TeamID,
	}

	a.lifecycle = lifecycle.NewManager(logger, func(prev, cur lifecycle.State, reason string) {
		if o.eventHandler != nil {
			o.eventHandler.OnStateChange(StateChangeEvent{Previous: prev, Current: cur, Reason: reason})
		}
	})

	a.queue = queue.New(queue.Config{
		Path:           cfg.QueuePath,
		Capacity:       cfg.QueueCapacity,
		MaxFileBytes:   cfg.QueueMaxBytes,
		LockTimeout:    cfg.LockTimeout,
		RebuildTimeout: cfg.LockRebuildTimeout,
	}, o.storageLock, logger)

	a.sender = sender.New(sender.Config{
		BaseURL:       cfg.OrchestratorURL,
		DeviceID:      cfg.DeviceID,
		MaxAttempts:   cfg.MaxAttempts,
		ScanTimeout:   cfg.ScanTimeout,
		BatchTimeout:  cfg.BatchTimeout,
		HealthTimeout: cfg.HealthTimeout,
	}, o.httpClient, logger)

	return a, nil
}

// Start validates the queue and launches the background sync task.
// Returns immediately; the task runs until the context is cancelled or
// Stop() is called. A corrupted queue file is recovered (deleted) here
// and reported once, and startup continues with an empty queue.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := a.lifecycle.TransitionTo(StateStarting, "Start() called"); err != nil {
		return err
	}

	if err := a.queue.Initialize(); err != nil {
		if errors.Is(err, queue.ErrCorrupted) {
			a.logger.Warn("corrupted queue recovered, starting empty")
		} else {
			_ = a.lifecycle.TransitionTo(StateCrashed, "queue init failed")
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.ctx = runCtx
	a.cancel = cancel
	a.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		ConfigPath:      a.config.ConfigPath,
		OrchestratorURL: a.config.OrchestratorURL,
		DeviceID:        a.config.DeviceID,
		TeamID:          a.config.TeamID,
		QueuePath:       a.config.QueuePath,
		Logger:          a.logger,
		Updater:         a,
	}
	for _, p := range a.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			a.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			_ = a.lifecycle.TransitionTo(StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		a.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	a.lifecycle.AddWorker()
	go func() {
		defer a.lifecycle.WorkerDone()

		if err := a.lifecycle.TransitionTo(StateRunning, "sync task starting"); err != nil {
			a.logger.Error("failed to transition to running", log.Err(err))
			return
		}

		err := a.run(runCtx)

		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("sync task error", log.Err(err))
			a.shutdownPlugins()
			_ = a.lifecycle.TransitionTo(StateCrashed, err.Error())
			return
		}
		if err == nil {
			// Once mode: the task finished its single cycle.
			_ = a.lifecycle.TransitionTo(StateStopping, "sync complete")
			a.shutdownPlugins()
			_ = a.lifecycle.TransitionTo(StateStopped, "sync complete")
		}
	}()

	return nil
}

// Stop gracefully shuts down the agent: cancels the sync task, waits for
// it, and shuts down plugins in reverse order.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if !a.lifecycle.CanStop() {
		a.mu.Unlock()
		return ErrNotRunning
	}
	if err := a.lifecycle.TransitionTo(StateStopping, "Stop() called"); err != nil {
		a.mu.Unlock()
		return err
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	err := a.lifecycle.WaitWithTimeout(lifecycle.ShutdownTimeout)

	a.shutdownPlugins()

	if err != nil {
		_ = a.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
	} else {
		_ = a.lifecycle.TransitionTo(StateStopped, "graceful shutdown")
	}
	return err
}

// shutdownPlugins shuts plugins down in reverse registration order, once.
func (a *Agent) shutdownPlugins() {
	a.pluginShutdown.Do(func() {
		ctx := context.Background()
		for i := len(a.plugins) - 1; i >= 0; i-- {
			p := a.plugins[i]
			if err := p.Shutdown(ctx); err != nil {
				a.logger.Error("plugin shutdown failed",
					log.String("plugin", p.Name()),
					log.Err(err))
			}
		}
	})
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (a *Agent) Status() State {
	return a.lifecycle.State()
}

// Submit sends the record now if the orchestrator is reachable, and
// queues it otherwise, including when the send fails after its retry
// budget. It returns when the record is sent or durably queued; a failed
// direct send pays the full retry schedule before falling back to the queue.
// A queue fault costs at most this one record, never the ability to
// accept the next scan.
func (a *Agent) Submit(rec scan.Record) {
	if rec.TeamID == "" {
		rec.TeamID = a.currentTeamID()
	}
	if rec.DeviceID == "" {
		rec.DeviceID = a.config.DeviceID
	}
	if rec.DeviceType == "" {
		rec.DeviceType = a.config.DeviceType
	}
	if !rec.Valid() {
		a.logger.Error("invalid scan record dropped", log.String("tokenId", rec.TokenID))
		return
	}

	if a.conn.IsReachable() {
		if a.sender.SendScan(a.runCtx(), rec) {
			return
		}
		a.logger.Warn("direct send failed, queueing scan", log.String("tokenId", rec.TokenID))
	}

	if err := a.queue.Append(rec); err != nil {
		a.logger.Error("queue scan", log.String("tokenId", rec.TokenID), log.Err(err))
	}
}

// QueueDepth returns the number of queued records.
func (a *Agent) QueueDepth() int {
	return a.queue.Size()
}

// ConnectionState returns the current connectivity state.
func (a *Agent) ConnectionState() connstate.State {
	return a.conn.Get()
}

// NetworkUp is the link-up hook for the external connectivity layer.
// The orchestrator is unknown until the next health check.
func (a *Agent) NetworkUp() {
	a.setConn(connstate.NetworkUp)
	a.logger.Info("network link up")
}

// NetworkDown is the link-down hook for the external connectivity layer.
func (a *Agent) NetworkDown() {
	a.setConn(connstate.Disconnected)
	a.logger.Warn("network link down")
}

// ForceDrain health-checks and, if the orchestrator is reachable, drains
// the queue immediately. Returns true if the queue is empty afterwards.
func (a *Agent) ForceDrain() bool {
	st := a.conn.Get()
	if !st.HasNetwork() {
		return false
	}
	ctx := a.runCtx()
	if !a.sender.HealthCheck(ctx) {
		if st == connstate.Reachable {
			a.setConn(connstate.NetworkUp)
		}
		return false
	}
	a.setConn(connstate.Reachable)
	return a.drain(ctx)
}

// ClearQueue wipes the durable queue. Operator-invoked only.
func (a *Agent) ClearQueue() error {
	return a.queue.Clear()
}

// SyncTokens downloads the orchestrator's token database for the local
// mirror the display layer reads from.
func (a *Agent) SyncTokens(ctx context.Context) ([]byte, error) {
	return a.sender.FetchTokens(ctx)
}

// ApplyRuntimeConfig applies a runtime configuration change, typically
// pushed by the config watcher plugin.
func (a *Agent) ApplyRuntimeConfig(rc RuntimeConfig) {
	if rc.OrchestratorURL != "" && rc.OrchestratorURL != a.sender.BaseURL() {
		a.sender.SetBaseURL(rc.OrchestratorURL)
		a.logger.Info("orchestrator URL updated", log.String("url", rc.OrchestratorURL))
	}
	if rc.TeamID != "" && rc.TeamID != a.currentTeamID() {
		a.teamMu.Lock()
		a.teamID = rc.TeamID
		a.teamMu.Unlock()
		a.logger.Info("team updated", log.String("teamId", rc.TeamID))
	}
}

func (a *Agent) currentTeamID() string {
	a.teamMu.RLock()
	defer a.teamMu.RUnlock()
	return a.teamID
}

func (a *Agent) runCtx() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

func (a *Agent) setConn(next connstate.State) {
	prev := a.conn.Get()
	a.conn.Set(next)
	if prev != next && a.opts.eventHandler != nil {
		a.opts.eventHandler.OnConnectionChange(ConnectionChangeEvent{Previous: prev, Current: next})
	}
}

// run is the background sync task loop.
func (a *Agent) run(ctx context.Context) error {
	if a.config.Once {
		a.tick(ctx)
		return nil
	}

	ticker := time.NewTicker(a.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick is one background cycle: health-check, update connectivity, drain.
// While fully disconnected it does nothing; reconnection is the link
// layer's job.
func (a *Agent) tick(ctx context.Context) {
	st := a.conn.Get()
	if !st.HasNetwork() {
		return
	}

	if !a.sender.HealthCheck(ctx) {
		if st == connstate.Reachable {
			a.logger.Warn("orchestrator unreachable")
			a.setConn(connstate.NetworkUp)
		}
		return
	}

	if st != connstate.Reachable {
		a.logger.Info("orchestrator reachable")
	}
	a.setConn(connstate.Reachable)

	a.syncTokenStore(ctx)

	if a.queue.Size() > 0 {
		a.drain(ctx)
	}
}

// syncTokenStore downloads the token database into the configured store,
// once per run. Failures are retried on later cycles.
func (a *Agent) syncTokenStore(ctx context.Context) {
	if a.opts.tokenStore == nil || a.tokensSynced {
		return
	}
	data, err := a.sender.FetchTokens(ctx)
	if err != nil {
		a.logger.Warn("token sync failed", log.Err(err))
		return
	}
	if err := a.opts.tokenStore(ctx, data); err != nil {
		a.logger.Warn("token store rejected sync", log.Err(err))
		return
	}
	a.tokensSynced = true
	a.logger.Info("token database synced", log.Int("bytes", len(data)))
}

// drain uploads queued records batch by batch until the queue is empty,
// a batch fails, or the per-tick iteration cap is reached. Each iteration
// reads, uploads and removes the head under one storage lock acquisition;
// between iterations the task yields so foreground appends get through.
func (a *Agent) drain(ctx context.Context) bool {
	a.drainMu.Lock()
	defer a.drainMu.Unlock()

	total := 0
	for i := 0; i < a.config.MaxDrainBatches; i++ {
		if ctx.Err() != nil {
			return false
		}

		n, err := a.queue.DrainBatch(a.config.BatchSize, func(recs []scan.Record) bool {
			return a.sender.SendBatch(ctx, recs)
		})
		if err != nil {
			if errors.Is(err, queue.ErrUploadFailed) {
				a.logger.Warn("batch upload failed, entries remain queued",
					log.Int("uploaded", total),
					log.Int("remaining", a.queue.Size()))
			} else {
				a.logger.Error("queue drain aborted", log.Err(err))
			}
			a.emitDrain(total, false)
			return false
		}
		total += n

		if a.queue.Size() == 0 {
			break
		}

		select {
		case <-ctx.Done():
			a.emitDrain(total, false)
			return false
		case <-time.After(a.config.BatchDelay):
		}
	}

	remaining := a.queue.Size()
	if total > 0 {
		a.logger.Info("queue drained",
			log.Int("uploaded", total),
			log.Int("remaining", remaining))
	}
	a.emitDrain(total, remaining == 0)
	return remaining == 0
}

func (a *Agent) emitDrain(uploaded int, complete bool) {
	if a.opts.eventHandler == nil {
		return
	}
	a.opts.eventHandler.OnDrain(DrainEvent{
		Uploaded:  uploaded,
		Remaining: a.queue.Size(),
		Complete:  complete,
	})
}
