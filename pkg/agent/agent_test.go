package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gravito-framework/quasar-stat/pkg/config"
	"github.com/gravito-framework/quasar-stat/pkg/lock"
	"github.com/gravito-framework/quasar-stat/pkg/metrics"
	"github.com/gravito-framework/quasar-stat/pkg/storage"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Lock.Driver = lock.DriverNone
	cfg.Storage.Driver = "none"
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.PollingInterval = 0

	a, err := New(cfg)
	require.Error(t, err)
	require.Nil(t, a)

	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "PollingInterval", cerr.Field)
}

func TestNewRegistersTasksInOrder(t *testing.T) {
	require := require.New(t)

	cfg := testConfig()
	cfg.ParentPID = 1
	a, err := New(cfg, WithProcessChecker(&fakeChecker{}), WithRunID("run-order"))
	require.NoError(err)
	defer a.Close()

	require.Equal("run-order", a.RunID())
	require.Equal([]string{TaskTerminateIfNeeded, TaskProcessQueued, TaskProcessCount}, a.Scheduler().Tasks())
}

func TestNewGeneratesRunID(t *testing.T) {
	a, err := New(testConfig(), WithProcessChecker(&fakeChecker{}))
	require.NoError(t, err)
	defer a.Close()

	b, err := New(testConfig(), WithProcessChecker(&fakeChecker{}))
	require.NoError(t, err)
	defer b.Close()

	require.NotEmpty(t, a.RunID())
	require.NotEqual(t, a.RunID(), b.RunID())
}

func TestAgentRun(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	mr.Lpush("queues:default", "job-1")
	mr.Lpush("queues:default", "job-2")
	mr.ZAdd("queues:default:delayed", 1, "job-3")

	cfg := testConfig()
	cfg.ParentPID = 4321
	cfg.MaxCycles = 180
	cfg.Service = "billing"
	cfg.TransportRedisURL = "redis://" + mr.Addr()
	cfg.MonitorRedisURL = "redis://" + mr.Addr()
	cfg.Queues = []config.QueueConfig{{Name: "default", Type: config.QueueLaravel}}
	cfg.Storage = config.StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "stat.db")}

	checker := &fakeChecker{consumers: []int32{20, 21}}
	collector := metrics.New()
	notifier := &recordingNotifier{}

	a, err := New(cfg,
		WithRunID("run-e2e"),
		WithClock(newStepClock()),
		WithProcessChecker(checker),
		WithSystemProbe(fakeSystemProbe{}),
		WithMetrics(collector),
		WithSystemdNotifier(notifier),
	)
	require.NoError(err)
	require.Equal([]string{TaskTerminateIfNeeded, TaskProcessQueued, TaskProcessCount, TaskHeartbeat}, a.Scheduler().Tasks())

	res, err := a.Run(ctx)
	require.NoError(err)
	require.Equal(StateCompleted, res.State)
	require.Equal(180, res.Cycles)
	require.Equal(0, res.ExitCode())
	require.Equal(2, checker.calls, "monitor runs at twice the polling interval")
	require.Equal([]string{"ready", "stopping"}, notifier.events)

	families, err := collector.Registry().Gather()
	require.NoError(err)
	var ticks float64
	for _, mf := range families {
		if mf.GetName() == "quasar_stat_ticks_total" {
			ticks = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(180.0, ticks)
	runs, err := testutil.GatherAndCount(collector.Registry(), "quasar_stat_task_runs_total")
	require.NoError(err)
	require.Equal(4, runs)
	require.NoError(a.Close())

	require.True(mr.Exists(HeartbeatKey("billing", "stat-host-4242")))

	db, err := storage.OpenSQLite(storage.Config{Path: cfg.Storage.Path}, nil)
	require.NoError(err)
	defer db.Close()

	snaps, err := db.Snapshots(ctx, 10)
	require.NoError(err)
	require.Len(snaps, 3)
	for _, s := range snaps {
		require.EqualValues(3, s.Queue)
		require.Equal("run-e2e", s.RunID)
	}

	consumers, err := db.Consumers(ctx, 10)
	require.NoError(err)
	require.Len(consumers, 3)
	require.Equal([]int32{20, 21}, consumers[0].PIDs)
}

func TestAgentTerminatesWhenParentDies(t *testing.T) {
	require := require.New(t)

	cfg := testConfig()
	cfg.ParentPID = 999
	sink := &memorySink{}

	a, err := New(cfg,
		WithClock(newStepClock()),
		WithProcessChecker(&fakeChecker{alive: func(call int) bool { return call < 2 }}),
		WithSink(sink),
	)
	require.NoError(err)

	res, err := a.Run(context.Background())
	require.NoError(err)
	require.Equal(StateTerminated, res.State)
	require.Equal(121, res.Cycles)
	require.Equal(1, res.ExitCode())
	require.Equal("The parent process died. Parent pid not found: 999", res.Message)
	require.Len(sink.snapshots, 2)

	require.NoError(a.Close())
	require.True(sink.closed)
}

func TestAgentLockHeldExitsCleanly(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Application = 77
	cfg.MonitorRedisURL = "redis://" + mr.Addr()
	cfg.Lock.Driver = lock.DriverRedis

	first, err := New(cfg, WithClock(newStepClock()), WithProcessChecker(&fakeChecker{}))
	require.NoError(err)
	defer first.Close()
	second, err := New(cfg, WithClock(newStepClock()), WithProcessChecker(&fakeChecker{}))
	require.NoError(err)
	defer second.Close()

	ok, err := first.lock.TryAcquire(ctx)
	require.NoError(err)
	require.True(ok)

	res, err := second.Run(ctx)
	require.NoError(err)
	require.True(res.LockHeld)
	require.Equal(0, res.ExitCode())
	require.Zero(res.Cycles)

	require.NoError(first.lock.Release(ctx))
	cfg.MaxCycles = 2
	res, err = second.Run(ctx)
	require.NoError(err)
	require.False(res.LockHeld)
	require.Equal(2, res.Cycles)
}

func TestAgentCloseIsSafeWithoutRedis(t *testing.T) {
	a, err := New(testConfig(), WithProcessChecker(&fakeChecker{}), WithClock(newStepClock()))
	require.NoError(t, err)
	require.NoError(t, a.Close())
}
