package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/aln-labs/scanship/internal/cliconfig"
	"github.com/aln-labs/scanship/pkg/log"
	"github.com/aln-labs/scanship/pkg/scan"
	"github.com/aln-labs/scanship/pkg/scanship"
	"github.com/aln-labs/scanship/plugins/configwatcher"
)

const helpDescription = `
Deliver scan events to an orchestrator, queueing them durably while the
network is away.

Highlights:
  - Scans submitted while offline land in a bounded on-disk queue and are
    batch-uploaded once the orchestrator answers health checks again.
  - Crash-safe queue: atomic rewrites, corruption detected and recovered at
    startup without operator intervention.
  - Configure via file, env (SCANSHIP_*), or flags; orchestrator URL and
    team can be changed at runtime by editing the config file.

Scan records are read from stdin, one JSON object per line:
  {"tokenId":"a1b2c3","timestamp":"2026-01-02T15:04:05Z"}
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  scanship --orchestrator-url http://orchestrator.local:3000 --data-dir /data
  scanship --config $HOME/.scanship/config.toml --once
  scanship --data-dir /data --clear-queue
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logz := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "scanship",
		Short:   "Deliver scan events to an orchestrator, queueing durably while offline",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.scanship/config.toml),
			// then env, then flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			} else {
				cfgFile = ""
			}

			// Apply environment variables (SCANSHIP_*)
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			// Fill DeviceID from the data directory's identity file if needed
			if err := cliconfig.LoadDeviceInfo(&cfg); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logz.Info().Interface("config", cfg).Msg("configuration")

			libCfg := scanship.Config{
				OrchestratorURL: cfg.OrchestratorURL,
				DeviceID:        cfg.DeviceID,
				DeviceType:      cfg.DeviceType,
				TeamID:          cfg.TeamID,
				ConfigPath:      cfgFile,
				QueuePath:       cfg.QueuePath,
				QueueCapacity:   cfg.QueueCapacity,
				QueueMaxBytes:   int64(cfg.QueueMaxBytes),
				BatchSize:       cfg.BatchSize,
				MaxDrainBatches: cfg.MaxBatches,
				MaxAttempts:     cfg.MaxAttempts,
				CheckInterval:   cfg.CheckInterval,
				BatchDelay:      cfg.BatchDelay,
				ScanTimeout:     cfg.ScanTimeout,
				BatchTimeout:    cfg.BatchTimeout,
				HealthTimeout:   cfg.HealthTimeout,
				Once:            cfg.Once,
			}

			zerologAdapter := log.NewZerologAdapterWithLogger(logz)

			opts := []scanship.Option{
				scanship.WithLogger(zerologAdapter),
			}
			if cfgFile != "" {
				opts = append(opts, configwatcher.WithDefaultConfigWatcher())
			}
			if cfg.DataDir != "" {
				tokensPath := filepath.Join(cfg.DataDir, "tokens.json")
				opts = append(opts, scanship.WithTokenStore(func(ctx context.Context, data []byte) error {
					return os.WriteFile(tokensPath, data, 0o644)
				}))
			}

			agent, err := scanship.New(libCfg, opts...)
			if err != nil {
				return fmt.Errorf("create scanship: %w", err)
			}

			if cfg.ClearQueue {
				if err := agent.ClearQueue(); err != nil {
					return fmt.Errorf("clear queue: %w", err)
				}
				logz.Info().Msg("queue cleared")
				return nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			// The host OS keeps the link; treat it as up from the start.
			agent.NetworkUp()

			if err := agent.Start(ctx); err != nil {
				return fmt.Errorf("start scanship: %w", err)
			}

			if !cfg.Once {
				go submitFromStdin(ctx, agent, logz)
			}

			// Poll for completion (for once mode)
			doneCh := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						status := agent.Status()
						if status == scanship.StateStopped || status == scanship.StateCrashed {
							close(doneCh)
							return
						}
					}
				}
			}()

			select {
			case <-sigCh:
				logz.Info().Msg("received signal, stopping...")
			case <-doneCh:
			}

			switch agent.Status() {
			case scanship.StateStopped:
				return nil
			case scanship.StateCrashed:
				return fmt.Errorf("scanship crashed")
			}
			if err := agent.Stop(); err != nil {
				return fmt.Errorf("stop scanship: %w", err)
			}
			return nil
		},
	}

	// Flags
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.scanship/config.toml)")
	root.Flags().StringVar(&cfg.OrchestratorURL, "orchestrator-url", cfg.OrchestratorURL, "orchestrator base URL")
	root.Flags().StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "device identifier (default: data-dir identity file, then hostname)")
	root.Flags().StringVar(&cfg.DeviceType, "device-type", cfg.DeviceType, "device type stamped onto scans")
	root.Flags().StringVar(&cfg.TeamID, "team-id", cfg.TeamID, "default team for scans that carry none")

	root.Flags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory for queue, identity and token files")
	root.Flags().StringVar(&cfg.QueuePath, "queue-path", cfg.QueuePath, "queue file path (defaults to <data-dir>/queue.jsonl)")
	root.Flags().IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "max queued scans before oldest are evicted")
	root.Flags().IntVar(&cfg.QueueMaxBytes, "queue-max-bytes", cfg.QueueMaxBytes, "queue file size treated as corrupt at startup")
	if err := root.Flags().MarkHidden("queue-max-bytes"); err != nil {
		logz.Info().Err(err).Msg("failed to hide queue-max-bytes flag")
	}

	root.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "scans per batch upload")
	root.Flags().IntVar(&cfg.MaxBatches, "max-batches", cfg.MaxBatches, "max batch uploads per sync cycle")
	root.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "retry attempts per network operation")
	root.Flags().DurationVar(&cfg.CheckInterval, "check-interval", cfg.CheckInterval, "orchestrator health check interval")
	root.Flags().DurationVar(&cfg.BatchDelay, "batch-delay", cfg.BatchDelay, "pause between batch uploads")
	root.Flags().DurationVar(&cfg.ScanTimeout, "scan-timeout", cfg.ScanTimeout, "HTTP timeout for single scan submission")
	root.Flags().DurationVar(&cfg.BatchTimeout, "batch-timeout", cfg.BatchTimeout, "HTTP timeout for batch upload")
	root.Flags().DurationVar(&cfg.HealthTimeout, "health-timeout", cfg.HealthTimeout, "HTTP timeout for health checks")

	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "run one sync cycle and exit")
	root.Flags().BoolVar(&cfg.ClearQueue, "clear-queue", cfg.ClearQueue, "wipe the queue and exit")

	if err := root.Execute(); err != nil {
		logz.Error().Err(err).Msg("scanship")
		os.Exit(1)
	}
}

// submitFromStdin feeds scan records from stdin into the agent, one JSON
// object per line. A missing timestamp is stamped with the current time.
// sc.Scan blocks until stdin closes; on ctx cancellation the goroutine is
// reaped by process exit, so this loop must not own any cleanup.
func submitFromStdin(ctx context.Context, agent *scanship.Agent, logz zerolog.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var rec scan.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logz.Warn().Err(err).Msg("skipping malformed scan line")
			continue
		}
		if rec.Timestamp == "" {
			rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		agent.Submit(rec)
	}
	if err := sc.Err(); err != nil {
		logz.Warn().Err(err).Msg("stdin read error")
	}
}
