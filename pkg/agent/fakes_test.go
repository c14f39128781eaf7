package agent

import (
	"context"
	"sync"
	"time"

	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/types"
)

// stepClock advances by the requested duration on every After call, so the
// driver loop runs without sleeping.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// fakeChecker answers Exists from alive and lists a fixed set of PIDs.
type fakeChecker struct {
	alive     func(call int) bool
	calls     int
	consumers []int32
	listErr   error
	existsErr error
}

func (f *fakeChecker) Exists(_ context.Context, _ int32) (bool, error) {
	f.calls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	if f.alive == nil {
		return true, nil
	}
	return f.alive(f.calls), nil
}

func (f *fakeChecker) ListRunningByName(_ context.Context, _ string) ([]int32, error) {
	return f.consumers, f.listErr
}

type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) QueueCount(context.Context) (int64, error) {
	return f.count, f.err
}

// memorySink keeps everything it is given.
type memorySink struct {
	snapshots []int64
	consumers [][]int32
	times     []time.Time
	closed    bool
}

func (s *memorySink) RecordSnapshot(_ context.Context, at time.Time, count int64) error {
	s.snapshots = append(s.snapshots, count)
	s.times = append(s.times, at)
	return nil
}

func (s *memorySink) RecordConsumers(_ context.Context, _ time.Time, pids []int32) error {
	s.consumers = append(s.consumers, pids)
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

type fakeSystemProbe struct{}

func (fakeSystemProbe) GetMetrics() (*probes.SystemMetrics, error) {
	return &probes.SystemMetrics{
		Language: types.LangGo,
		Version:  "go1.24",
		PID:      4242,
		Hostname: "stat-host",
		Platform: "linux",
		Uptime:   12,
		CPU:      types.CPUMetrics{System: 10, Process: 1.5, Cores: 4},
	}, nil
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Ready()    { n.events = append(n.events, "ready") }
func (n *recordingNotifier) Stopping() { n.events = append(n.events, "stopping") }
