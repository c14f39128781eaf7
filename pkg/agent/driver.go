package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gravito-framework/quasar-stat/pkg/lock"
	"github.com/gravito-framework/quasar-stat/pkg/schedule"
)

// CycleInterval is the pause between two scheduler ticks.
const CycleInterval = time.Second

// State is a driver lifecycle state.
type State int

const (
	StateLocking State = iota
	StateRunning
	StateCompleted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateLocking:
		return "locking"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result describes how a run ended.
type Result struct {
	State  State
	Cycles int
	// Message is the termination message (or the failing task error).
	Message string
	// LockHeld is set when another instance owned the lock.
	LockHeld bool
	// Interrupted is set when the context was cancelled (SIGINT/SIGTERM).
	Interrupted bool
}

// ExitCode maps the result to a process exit status.
func (r Result) ExitCode() int {
	if r.State == StateTerminated {
		return 1
	}
	return 0
}

// Clock is the time source of the driver loop. *clock.Clock from
// github.com/benbjohnson/clock satisfies it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Ticker is what the driver drives; *schedule.Scheduler implements it.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (schedule.Outcome, error)
}

// Notifier receives lifecycle notifications (systemd).
type Notifier interface {
	Ready()
	Stopping()
}

type nopNotifier struct{}

func (nopNotifier) Ready()    {}
func (nopNotifier) Stopping() {}

// Driver runs the scheduler for a bounded number of one-second cycles
// while holding the instance lock.
type Driver struct {
	ticker    Ticker
	lock      lock.InstanceLock
	clock     Clock
	maxCycles int
	logger    *slog.Logger
	notifier  Notifier
	onTick    func()
}

// DriverOption configures a Driver
type DriverOption func(*Driver)

// WithInstanceLock sets the lock acquired before the loop starts
func WithInstanceLock(l lock.InstanceLock) DriverOption {
	return func(d *Driver) { d.lock = l }
}

// WithDriverClock sets the time source
func WithDriverClock(c Clock) DriverOption {
	return func(d *Driver) { d.clock = c }
}

// WithMaxCycles bounds the run
func WithMaxCycles(n int) DriverOption {
	return func(d *Driver) { d.maxCycles = n }
}

// WithDriverLogger sets a custom logger
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = logger }
}

// WithNotifier sets the lifecycle notifier
func WithNotifier(n Notifier) DriverOption {
	return func(d *Driver) { d.notifier = n }
}

// WithTickHook is called after every tick.
func WithTickHook(fn func()) DriverOption {
	return func(d *Driver) { d.onTick = fn }
}

// NewDriver creates a driver for ticker. Without options it runs 3600
// cycles on the wall clock with no instance lock.
func NewDriver(ticker Ticker, clk Clock, opts ...DriverOption) *Driver {
	d := &Driver{
		ticker:    ticker,
		lock:      lock.Nop{},
		clock:     clk,
		maxCycles: 3600,
		logger:    slog.Default(),
		notifier:  nopNotifier{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run acquires the lock, ticks until the cycle budget is spent or a task
// terminates the run, and releases the lock on the way out.
//
// Lock contention is not an error: the result is Completed with LockHeld.
// A task error other than termination is returned as is, with the result
// in the Terminated state.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	res := Result{State: StateLocking}

	acquired, err := d.lock.TryAcquire(ctx)
	if err != nil {
		res.State = StateTerminated
		return res, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !acquired {
		d.logger.Info("Not allowed to run more than one instance, another one holds the lock")
		res.State = StateCompleted
		res.LockHeld = true
		return res, nil
	}
	defer d.release()

	d.notifier.Ready()
	defer d.notifier.Stopping()

	res.State = StateRunning
	d.logger.Debug("Driver loop started", "maxCycles", d.maxCycles, "locked", d.lock.Enabled())

	for res.Cycles < d.maxCycles {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		out, err := d.ticker.Tick(ctx, d.clock.Now())
		res.Cycles++
		if d.onTick != nil {
			d.onTick()
		}

		if err != nil {
			res.State = StateTerminated
			res.Message = err.Error()
			return res, err
		}
		if out.Terminate {
			res.State = StateTerminated
			res.Message = out.Message
			d.logger.Error(out.Message, "cycle", res.Cycles)
			return res, nil
		}

		if res.Cycles == d.maxCycles {
			break
		}

		select {
		case <-ctx.Done():
			res.Interrupted = true
		case <-d.clock.After(CycleInterval):
		}
		if res.Interrupted {
			break
		}
	}

	res.State = StateCompleted
	if res.Interrupted {
		d.logger.Info("Driver loop interrupted", "cycles", res.Cycles)
	} else {
		d.logger.Debug("Cycle budget exhausted", "cycles", res.Cycles)
	}
	return res, nil
}

func (d *Driver) release() {
	// The run context may already be cancelled; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.lock.Release(ctx); err != nil {
		d.logger.Warn("Failed to release instance lock", "error", err)
	}
}
