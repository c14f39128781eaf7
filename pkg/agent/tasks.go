package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/probes/queue"
	"github.com/gravito-framework/quasar-stat/pkg/schedule"
	"github.com/gravito-framework/quasar-stat/pkg/storage"
)

// Task names, in registration order.
const (
	TaskTerminateIfNeeded = "terminateIfNeeded"
	TaskProcessQueued     = "processQueued"
	TaskProcessCount      = "processCount"
	TaskHeartbeat         = "heartbeat"
)

// NewLivenessMonitor terminates the run once parentPID is gone. A zero
// parentPID makes the check a no-op.
func NewLivenessMonitor(checker probes.ProcessChecker, parentPID int32, interval time.Duration) schedule.Task {
	return schedule.Task{
		Name:     TaskTerminateIfNeeded,
		Interval: interval,
		Run: func(ctx context.Context) error {
			if parentPID == 0 {
				return nil
			}

			alive, err := checker.Exists(ctx, parentPID)
			if err != nil {
				return fmt.Errorf("check parent %d: %w", parentPID, err)
			}
			if !alive {
				return schedule.Terminatef("The parent process died. Parent pid not found: %d", parentPID)
			}
			return nil
		},
	}
}

// NewConsumerScan records the PIDs of running consumers whose command line
// contains consumerName. observe, if set, receives the consumer count.
func NewConsumerScan(checker probes.ProcessChecker, consumerName string, sink storage.Sink, clk Clock, interval time.Duration, observe func(int)) schedule.Task {
	return schedule.Task{
		Name:     TaskProcessQueued,
		Interval: interval,
		Run: func(ctx context.Context) error {
			pids, err := checker.ListRunningByName(ctx, consumerName)
			if err != nil {
				return fmt.Errorf("list consumers: %w", err)
			}
			if err := sink.RecordConsumers(ctx, clk.Now().UTC(), pids); err != nil {
				return err
			}
			if observe != nil {
				observe(len(pids))
			}
			return nil
		},
	}
}

// NewQueueSnapshot persists the current queue count. observe, if set,
// receives the count.
func NewQueueSnapshot(counter queue.Counter, sink storage.Sink, clk Clock, interval time.Duration, observe func(int64)) schedule.Task {
	return schedule.Task{
		Name:     TaskProcessCount,
		Interval: interval,
		Run: func(ctx context.Context) error {
			count, err := counter.QueueCount(ctx)
			if err != nil {
				return fmt.Errorf("count queue: %w", err)
			}
			if err := sink.RecordSnapshot(ctx, clk.Now().UTC(), count); err != nil {
				return err
			}
			if observe != nil {
				observe(count)
			}
			return nil
		},
	}
}
