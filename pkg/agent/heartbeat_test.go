package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/probes/queue"
	"github.com/gravito-framework/quasar-stat/pkg/types"
)

func TestHeartbeatKey(t *testing.T) {
	if got := HeartbeatKey("billing", "web-1"); got != "gravito:quasar:node:billing:web-1" {
		t.Errorf("Expected gravito:quasar:node:billing:web-1, got %s", got)
	}
}

func TestHeartbeatSend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.Lpush("queues:default", "job-1")
	mr.Lpush("queues:default", "job-2")

	hb := &Heartbeat{
		transport:    client,
		monitor:      client,
		service:      "billing",
		system:       fakeSystemProbe{},
		queues:       []probes.QueueProbe{queue.NewLaravelProbe(client, "default")},
		checker:      &fakeChecker{consumers: []int32{10, 11, 12}},
		consumerName: "queue:work",
		logger:       slog.Default(),
	}

	require.NoError(hb.Send(ctx))
	require.Equal("stat-host-4242", hb.NodeID())

	key := HeartbeatKey("billing", hb.NodeID())
	raw, err := mr.Get(key)
	require.NoError(err)
	require.Equal(keyTTL, mr.TTL(key))

	var payload types.HeartbeatPayload
	require.NoError(json.Unmarshal([]byte(raw), &payload))
	require.Equal("billing", payload.Service)
	require.Equal("stat-host", payload.Hostname)
	require.Equal("online", payload.Runtime.Status)
	require.Equal("Quasar", payload.Runtime.Framework)
	require.Len(payload.Queues, 1)
	require.EqualValues(2, payload.Queues[0].Size.Waiting)
	require.EqualValues(3, payload.Meta["consumers"])
}

func TestHeartbeatDegraded(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	transport := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer transport.Close()

	// Nothing listens here.
	monitor := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer monitor.Close()

	hb := &Heartbeat{
		transport: transport,
		monitor:   monitor,
		service:   "billing",
		name:      "custom-node",
		system:    fakeSystemProbe{},
		queues:    []probes.QueueProbe{queue.NewLaravelProbe(monitor, "default")},
		logger:    slog.Default(),
	}

	require.NoError(hb.Send(ctx))
	require.Equal("custom-node-4242", hb.NodeID())

	raw, err := mr.Get(HeartbeatKey("billing", hb.NodeID()))
	require.NoError(err)

	var payload types.HeartbeatPayload
	require.NoError(json.Unmarshal([]byte(raw), &payload))
	require.Equal("degraded", payload.Runtime.Status)
	require.Contains(payload.Runtime.Errors, "monitor_redis_offline")
	require.Empty(payload.Queues)
}

func TestHeartbeatWriteFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	hb := &Heartbeat{
		transport: client,
		service:   "billing",
		system:    fakeSystemProbe{},
		logger:    slog.Default(),
	}
	require.Error(t, hb.Send(context.Background()))
}
