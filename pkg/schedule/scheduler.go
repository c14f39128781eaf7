package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Hook observes every task firing. err is nil for a clean run.
type Hook func(name string, took time.Duration, err error)

type entry struct {
	task      Task
	nextDueAt time.Time // zero until the first firing
}

// Scheduler is a single-threaded delay pool. It is not safe for concurrent
// use: register everything up front, then call Tick from one loop.
type Scheduler struct {
	logger  *slog.Logger
	hook    Hook
	entries []*entry
	index   map[string]int
}

// Option is a functional option for configuring the Scheduler
type Option func(*Scheduler)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithHook installs an observer called after each task run.
func WithHook(hook Hook) Option {
	return func(s *Scheduler) {
		s.hook = hook
	}
}

// New creates an empty Scheduler
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: slog.Default(),
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a task. A task registered under an existing name replaces
// the earlier one in place and starts a fresh schedule.
//
// New tasks are due on the first tick after registration.
func (s *Scheduler) Register(task Task) error {
	if err := task.validate(); err != nil {
		return err
	}

	e := &entry{task: task}
	if i, ok := s.index[task.Name]; ok {
		s.entries[i] = e
		s.logger.Debug("Task replaced", "task", task.Name, "interval", task.Interval)
		return nil
	}

	s.index[task.Name] = len(s.entries)
	s.entries = append(s.entries, e)
	s.logger.Debug("Task registered", "task", task.Name, "interval", task.Interval)
	return nil
}

// Tasks returns the registered task names in firing order.
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.task.Name)
	}
	return names
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Tick fires every task due at now, in registration order.
//
// A TerminationSignal from a callback ends the tick at once and is reported
// through the Outcome. Any other callback error also ends the tick and is
// returned to the caller; the scheduler never retries or isolates tasks.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (Outcome, error) {
	var out Outcome

	for _, e := range s.entries {
		if now.Before(e.nextDueAt) {
			continue
		}

		start := time.Now()
		err := e.task.Run(ctx)
		took := time.Since(start)

		e.nextDueAt = now.Add(e.task.Interval)
		out.Fired = append(out.Fired, e.task.Name)

		if s.hook != nil {
			s.hook(e.task.Name, took, err)
		}

		if err == nil {
			s.logger.Debug("Task fired", "task", e.task.Name, "interval", e.task.Interval, "took", took)
			continue
		}

		var sig *TerminationSignal
		if errors.As(err, &sig) {
			s.logger.Debug("Task requested termination", "task", e.task.Name)
			out.Terminate = true
			out.Message = sig.Message
			return out, nil
		}

		return out, fmt.Errorf("task %s: %w", e.task.Name, err)
	}

	return out, nil
}

// NextDue returns when the named task fires next. A zero time means the
// task has not fired yet and is due on the next tick.
func (s *Scheduler) NextDue(name string) (time.Time, bool) {
	i, ok := s.index[name]
	if !ok {
		return time.Time{}, false
	}
	return s.entries[i].nextDueAt, true
}
