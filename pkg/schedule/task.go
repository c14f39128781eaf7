// Package schedule provides the cooperative delay pool that drives every
// periodic task of the stat supervisor.
//
// A Scheduler owns a short, ordered list of tasks. Each call to Tick fires
// the tasks whose due time has elapsed, one after another, in registration
// order. Nothing runs in the background: the caller decides when to tick.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Func is the action bound to a task.
type Func func(ctx context.Context) error

// Task binds a named callback to a fixed repeat interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      Func
}

func (t Task) validate() error {
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s: callback is required", t.Name)
	}
	if t.Interval < time.Second {
		return fmt.Errorf("task %s: interval must be at least 1s, got %v", t.Name, t.Interval)
	}
	return nil
}

// TerminationSignal aborts the whole run. Callbacks return it (usually via
// Terminate) instead of an ordinary error; Tick turns it into an Outcome.
type TerminationSignal struct {
	Message string
}

func (s *TerminationSignal) Error() string {
	return "terminate: " + s.Message
}

// Terminate builds a termination signal carrying msg.
func Terminate(msg string) error {
	return &TerminationSignal{Message: msg}
}

// Terminatef is Terminate with formatting.
func Terminatef(format string, args ...any) error {
	return &TerminationSignal{Message: fmt.Sprintf(format, args...)}
}

// Outcome is the result of a tick.
type Outcome struct {
	// Terminate is set when a task raised a TerminationSignal.
	Terminate bool
	// Message carries the termination message.
	Message string
	// Fired lists the tasks that ran during the tick, in order.
	Fired []string
}

// Continue reports whether the caller should keep ticking.
func (o Outcome) Continue() bool {
	return !o.Terminate
}
