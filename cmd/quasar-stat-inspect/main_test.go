package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gravito-framework/quasar-stat/pkg/storage"
	"github.com/gravito-framework/quasar-stat/pkg/types"
)

type staticChecker []int32

func (staticChecker) Exists(context.Context, int32) (bool, error) { return true, nil }

func (c staticChecker) ListRunningByName(context.Context, string) ([]int32, error) {
	return c, nil
}

func TestPrintConsumers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printConsumers(context.Background(), &buf, staticChecker{12, 34}, "queue:work"))
	require.Contains(t, buf.String(), `Consumers matching "queue:work": 2`)
	require.Contains(t, buf.String(), "  - 34")
}

func TestPrintSnapshots(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db, err := storage.OpenSQLite(storage.Config{Path: filepath.Join(t.TempDir(), "stat.db"), RunID: "r1"}, nil)
	require.NoError(err)
	defer db.Close()

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(db.RecordSnapshot(ctx, at, 15))
	require.NoError(db.RecordConsumers(ctx, at, []int32{1, 2, 3}))

	var buf bytes.Buffer
	require.NoError(printSnapshots(ctx, &buf, db, 5))
	require.Contains(buf.String(), "2024-05-06 07:08:09  queue=15  run=r1")
	require.Contains(buf.String(), "consumers=3")
}

func TestPrintHeartbeats(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	data, err := json.Marshal(types.HeartbeatPayload{
		ID:      "web-1-99",
		Service: "billing",
		CPU:     types.CPUMetrics{System: 12.5, Process: 0.25, Cores: 8},
		Queues: []types.QueueSnapshot{{
			Name: "default",
			Size: types.QueueSize{Waiting: 4},
		}},
		Runtime: types.RuntimeInfo{Status: "degraded", Errors: []string{"monitor_redis_offline"}},
		Meta:    map[string]any{"consumers": 2},
	})
	require.NoError(err)
	require.NoError(mr.Set("gravito:quasar:node:billing:web-1-99", string(data)))
	require.NoError(mr.Set("unrelated", "x"))

	var buf bytes.Buffer
	require.NoError(printHeartbeats(ctx, &buf, client))
	out := buf.String()
	require.Contains(out, "Found 1 Quasar nodes")
	require.Contains(out, "Node ID: web-1-99 (degraded)")
	require.Contains(out, "Consumers: 2")
	require.Contains(out, "Errors: monitor_redis_offline")
	require.Contains(out, "- default: waiting=4")
}
