// Package agent assembles the stat supervisor: it builds the collaborators
// from configuration, registers the periodic tasks and runs the driver loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	iredis "github.com/gravito-framework/quasar-stat/internal/redis"
	"github.com/gravito-framework/quasar-stat/pkg/config"
	"github.com/gravito-framework/quasar-stat/pkg/lock"
	"github.com/gravito-framework/quasar-stat/pkg/metrics"
	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/probes/queue"
	"github.com/gravito-framework/quasar-stat/pkg/schedule"
	"github.com/gravito-framework/quasar-stat/pkg/storage"
)

// Agent is the stat supervisor
type Agent struct {
	config *config.Config
	logger *slog.Logger
	runID  string

	// Redis connections
	transportRedis *redis.Client // For sending heartbeats to Zenith (optional)
	monitorRedis   *redis.Client // For inspecting local app queues (optional)

	// Collaborators
	systemProbe probes.SystemProbe
	checker     probes.ProcessChecker
	counter     queue.Counter
	sink        storage.Sink
	lock        lock.InstanceLock
	clock       Clock
	metrics     *metrics.Collector
	notifier    Notifier

	scheduler *schedule.Scheduler
	heartbeat *Heartbeat
}

// Option is a functional option for configuring the Agent
type Option func(*Agent)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) Option {
	return func(a *Agent) {
		a.runID = id
	}
}

// WithSystemProbe sets a custom system probe
func WithSystemProbe(probe probes.SystemProbe) Option {
	return func(a *Agent) {
		a.systemProbe = probe
	}
}

// WithProcessChecker sets a custom process checker
func WithProcessChecker(checker probes.ProcessChecker) Option {
	return func(a *Agent) {
		a.checker = checker
	}
}

// WithCounter sets a custom queue counter
func WithCounter(counter queue.Counter) Option {
	return func(a *Agent) {
		a.counter = counter
	}
}

// WithSink sets a custom snapshot sink
func WithSink(sink storage.Sink) Option {
	return func(a *Agent) {
		a.sink = sink
	}
}

// WithLock sets a custom instance lock
func WithLock(l lock.InstanceLock) Option {
	return func(a *Agent) {
		a.lock = l
	}
}

// WithClock sets the time source
func WithClock(c Clock) Option {
	return func(a *Agent) {
		a.clock = c
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Agent) {
		a.metrics = c
	}
}

// WithSystemdNotifier sets the lifecycle notifier
func WithSystemdNotifier(n Notifier) Option {
	return func(a *Agent) {
		a.notifier = n
	}
}

// New creates the supervisor and registers its tasks. Collaborators not
// supplied through options are built from cfg.
func New(cfg *config.Config, opts ...Option) (a *Agent, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a = &Agent{
		config:   cfg,
		logger:   slog.Default(),
		notifier: nopNotifier{},
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.runID == "" {
		a.runID = xid.New().String()
	}
	a.logger = a.logger.With("run", a.runID)

	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := a.openRedis(); err != nil {
		return a, err
	}

	if a.checker == nil {
		a.checker = probes.NewGoProcessChecker()
	}

	if a.counter == nil {
		if a.counter, err = queue.NewCounter(a.monitorRedis, cfg.Queues); err != nil {
			return a, err
		}
	}

	if a.sink == nil {
		a.sink, err = storage.Open(storage.Config{
			Driver: cfg.Storage.Driver,
			Path:   cfg.Storage.Path,
			RunID:  a.runID,
		}, a.logger)
		if err != nil {
			return a, fmt.Errorf("failed to open storage: %w", err)
		}
	}

	if a.lock == nil {
		lockClient := a.monitorRedis
		if lockClient == nil {
			lockClient = a.transportRedis
		}
		a.lock, err = lock.Open(cfg.Application, lock.Options{
			Driver: cfg.Lock.Driver,
			Dir:    cfg.Lock.Dir,
			Redis:  lockClient,
			TTL:    cfg.LockTTL(),
			Logger: a.logger,
		})
		if err != nil {
			return a, fmt.Errorf("failed to open instance lock: %w", err)
		}
	}

	if a.clock == nil {
		a.clock = clock.New()
	}

	if err := a.registerTasks(); err != nil {
		return a, err
	}

	return a, nil
}

func (a *Agent) openRedis() error {
	var err error
	if a.config.TransportRedisURL != "" {
		if a.transportRedis, err = iredis.NewClient(a.config.TransportRedisURL); err != nil {
			return fmt.Errorf("invalid transport redis URL: %w", err)
		}
	}
	if a.config.MonitorRedisURL != "" {
		if a.monitorRedis, err = iredis.NewClient(a.config.MonitorRedisURL); err != nil {
			return fmt.Errorf("invalid monitor redis URL: %w", err)
		}
	}
	return nil
}

func (a *Agent) registerTasks() error {
	schedOpts := []schedule.Option{schedule.WithLogger(a.logger)}
	var observeCount func(int64)
	var observeConsumers func(int)
	if a.metrics != nil {
		schedOpts = append(schedOpts, schedule.WithHook(a.metrics.ObserveTask))
		observeCount = a.metrics.SetQueueDepth
		observeConsumers = a.metrics.SetConsumers
	}
	a.scheduler = schedule.New(schedOpts...)

	cfg := a.config
	tasks := []schedule.Task{
		NewLivenessMonitor(a.checker, cfg.ParentPID, cfg.MonitorInterval()),
		NewConsumerScan(a.checker, cfg.ConsumerName, a.sink, a.clock, cfg.ConsumerScanInterval(), observeConsumers),
		NewQueueSnapshot(a.counter, a.sink, a.clock, cfg.PollingInterval, observeCount),
	}

	if a.transportRedis != nil {
		if a.systemProbe == nil {
			probe, err := probes.NewGoSystemProbe()
			if err != nil {
				return fmt.Errorf("failed to create system probe: %w", err)
			}
			a.systemProbe = probe
		}

		a.heartbeat = &Heartbeat{
			transport:    a.transportRedis,
			monitor:      a.monitorRedis,
			service:      cfg.Service,
			name:         cfg.Name,
			system:       a.systemProbe,
			checker:      a.checker,
			consumerName: cfg.ConsumerName,
			logger:       a.logger,
		}
		if pc, ok := a.counter.(*queue.ProbeCounter); ok {
			a.heartbeat.queues = pc.Probes()
		}
		tasks = append(tasks, a.heartbeat.Task(cfg.Interval))
	}

	for _, t := range tasks {
		if err := a.scheduler.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// RunID returns the identifier attached to logs and stored rows.
func (a *Agent) RunID() string {
	return a.runID
}

// Scheduler exposes the task pool (diagnostics and tests).
func (a *Agent) Scheduler() *schedule.Scheduler {
	return a.scheduler
}

// Run drives the scheduler until the cycle budget is spent, a task
// terminates the run, or ctx is cancelled.
func (a *Agent) Run(ctx context.Context) (Result, error) {
	iredis.Ping(ctx, a.transportRedis, "transport", a.logger)
	iredis.Ping(ctx, a.monitorRedis, "monitor", a.logger)

	a.logger.Info("Quasar stat supervisor started",
		"application", a.config.Application,
		"parentPid", a.config.ParentPID,
		"pollingInterval", a.config.PollingInterval,
		"maxCycles", a.config.MaxCycles,
		"tasks", a.scheduler.Tasks(),
	)

	driverOpts := []DriverOption{
		WithInstanceLock(a.lock),
		WithMaxCycles(a.config.MaxCycles),
		WithDriverLogger(a.logger),
		WithNotifier(a.notifier),
	}
	if a.metrics != nil {
		driverOpts = append(driverOpts, WithTickHook(a.metrics.ObserveTick))
	}

	res, err := NewDriver(a.scheduler, a.clock, driverOpts...).Run(ctx)
	if err != nil {
		a.logger.Error("Supervisor failed", "error", err, "cycles", res.Cycles)
		return res, err
	}

	a.logger.Info("Quasar stat supervisor stopped", "state", res.State, "cycles", res.Cycles)
	return res, nil
}

// Close releases storage and Redis connections.
func (a *Agent) Close() error {
	var result *multierror.Error

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close storage: %w", err))
		}
	}
	if err := iredis.CloseAll(a.transportRedis, a.monitorRedis); err != nil {
		result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
	}

	return result.ErrorOrNil()
}
