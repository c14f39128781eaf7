// Quasar Stat - queue statistics supervisor
//
// Runs for about an hour, sampling queue depth and consumer processes at a
// fixed polling interval, and exits when its parent process disappears.
// A process manager (cron, systemd, supervisord) is expected to start it
// again.
//
// Usage:
//
//	quasar-stat 12 4711 --polling-interval 60
//
// Or with a config file:
//
//	quasar-stat --config /etc/quasar/stat.yaml
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gravito-framework/quasar-stat/internal/systemd"
	"github.com/gravito-framework/quasar-stat/pkg/agent"
	"github.com/gravito-framework/quasar-stat/pkg/config"
	"github.com/gravito-framework/quasar-stat/pkg/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	cfgConfigFile      = "config"
	cfgPollingInterval = "polling-interval"
	cfgMaxCycles       = "max-cycles"
	cfgLockDriver      = "lock-driver"
	cfgLockDir         = "lock-dir"
	cfgStorageDriver   = "storage-driver"
	cfgStoragePath     = "storage-path"
	cfgMetricsAddr     = "metrics-addr"
	cfgLogLevel        = "log-level"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the root command and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	exitCode := 0
	cmd := newRootCmd(&exitCode)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprintln(stderr, "\nRun 'quasar-stat --help' for usage information.")
		return 1
	}
	return exitCode
}

func newRootCmd(exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quasar-stat [application] [parentPid]",
		Short: "Quasar queue statistics supervisor",
		Long: `Quasar Stat samples queue depth and running consumers for one hour.

It holds a per-application instance lock, stops as soon as the parent
process disappears and exits cleanly when another instance already runs.

Arguments:
  application   Instance lock key (0 disables the lock)
  parentPid     Process to watch (0 disables the liveness check)

Environment Variables:
  QUASAR_POLLING_INTERVAL     Polling interval in seconds (default: 60)
  QUASAR_CONSUMER_NAME        Consumer command line match (default: queue:work)
  QUASAR_MONITOR_REDIS_URL    Redis URL for local app queue monitoring
  QUASAR_QUEUES               Queues to count, e.g. laravel:default,redis:jobs
  QUASAR_TRANSPORT_REDIS_URL  Redis URL for Zenith heartbeats (optional)
  QUASAR_SERVICE              Service name, required with heartbeats`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := run(cmd, args)
			*exitCode = code
			return err
		},
	}

	flags := cmd.Flags()
	flags.String(cfgConfigFile, "", "path to a YAML config file")
	flags.Int(cfgPollingInterval, int(config.DefaultPollingInterval/time.Second), "polling interval in seconds")
	flags.Int(cfgMaxCycles, config.DefaultMaxCycles, "number of one-second cycles before exiting")
	flags.String(cfgLockDriver, "file", "instance lock driver: file, redis or none")
	flags.String(cfgLockDir, "", "directory for file locks (default: temp dir)")
	flags.String(cfgStorageDriver, "sqlite", "snapshot storage: sqlite or none")
	flags.String(cfgStoragePath, config.DefaultStoragePath, "sqlite database path")
	flags.String(cfgMetricsAddr, "", "serve Prometheus metrics on this address")
	flags.String(cfgLogLevel, "info", "log level: debug, info, warn or error")

	return cmd
}

func run(cmd *cobra.Command, args []string) (int, error) {
	configFile, _ := cmd.Flags().GetString(cfgConfigFile)
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return 1, err
	}
	if err := applyArgs(cfg, args); err != nil {
		return 1, err
	}
	if err := applyFlags(cfg, cmd); err != nil {
		return 1, err
	}

	logger := newLogger(cmd.OutOrStdout(), cfg.LogLevel)
	slog.SetDefault(logger)

	fmt.Fprintf(cmd.OutOrStdout(), "🌌 Quasar Stat %s (%s)\n", version, commit[:min(7, len(commit))])

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithSystemdNotifier(systemd.NewNotifier(logger)),
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.New()
		opts = append(opts, agent.WithMetrics(collector))
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Warn("Metrics endpoint stopped", "error", err)
			}
		}()
	}

	a, err := agent.New(cfg, opts...)
	if err != nil {
		return 1, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Shutdown error", "error", err)
		}
	}()

	res, err := a.Run(ctx)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return 1, nil
	}
	if res.State == agent.StateTerminated {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Message)
	}
	if res.Interrupted {
		logger.Info("Received shutdown signal", "cycles", res.Cycles)
	}

	return res.ExitCode(), nil
}

// applyArgs sets the positional application and parentPid arguments.
func applyArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		app, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid application %q: %w", args[0], err)
		}
		cfg.Application = app
	}
	if len(args) > 1 {
		pid, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid parentPid %q: %w", args[1], err)
		}
		cfg.ParentPID = int32(pid)
	}
	return nil
}

// applyFlags overrides the loaded configuration with explicitly set flags.
func applyFlags(cfg *config.Config, cmd *cobra.Command) error {
	flags := cmd.Flags()

	if flags.Changed(cfgPollingInterval) {
		seconds, err := flags.GetInt(cfgPollingInterval)
		if err != nil {
			return err
		}
		cfg.PollingInterval = time.Duration(seconds) * time.Second
	}
	if flags.Changed(cfgMaxCycles) {
		n, err := flags.GetInt(cfgMaxCycles)
		if err != nil {
			return err
		}
		cfg.MaxCycles = n
	}

	for name, dst := range map[string]*string{
		cfgLockDriver:    &cfg.Lock.Driver,
		cfgLockDir:       &cfg.Lock.Dir,
		cfgStorageDriver: &cfg.Storage.Driver,
		cfgStoragePath:   &cfg.Storage.Path,
		cfgMetricsAddr:   &cfg.MetricsAddr,
		cfgLogLevel:      &cfg.LogLevel,
	} {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	return cfg.Validate()
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	}))
}
