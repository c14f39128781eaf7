package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/schedule"
	"github.com/gravito-framework/quasar-stat/pkg/types"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "gravito:quasar:node:"
	keyTTL    = 30 * time.Second
)

// Heartbeat publishes the node status to Zenith through the transport
// Redis, so the supervisor shows up next to regular Quasar agents.
type Heartbeat struct {
	transport    *redis.Client
	monitor      *redis.Client
	service      string
	name         string
	system       probes.SystemProbe
	queues       []probes.QueueProbe
	checker      probes.ProcessChecker
	consumerName string
	logger       *slog.Logger

	nodeID string
}

// HeartbeatKey returns the Redis key a node's heartbeat is stored under.
func HeartbeatKey(service, nodeID string) string {
	return keyPrefix + service + ":" + nodeID
}

// NodeID returns the identifier used in the last heartbeat.
func (h *Heartbeat) NodeID() string {
	return h.nodeID
}

// Task wraps Send as a schedule task.
func (h *Heartbeat) Task(interval time.Duration) schedule.Task {
	return schedule.Task{
		Name:     TaskHeartbeat,
		Interval: interval,
		Run:      h.Send,
	}
}

// Send collects metrics and writes one heartbeat. Probe failures degrade
// the reported status; only a failed write is returned.
func (h *Heartbeat) Send(ctx context.Context) error {
	metrics, err := h.system.GetMetrics()
	if err != nil {
		return fmt.Errorf("failed to collect metrics: %w", err)
	}

	hostname := h.name
	if hostname == "" {
		hostname = metrics.Hostname
	}
	h.nodeID = fmt.Sprintf("%s-%d", hostname, metrics.PID)

	var agentErrors []string
	agentStatus := "online"

	var queues []types.QueueSnapshot
	for _, probe := range h.queues {
		snapshot, err := probe.GetSnapshot(ctx)
		if err != nil {
			h.logger.Warn("Queue probe failed", "error", err)
			agentStatus = "degraded"
			continue
		}
		queues = append(queues, *snapshot)
	}

	meta := map[string]any{}
	if h.checker != nil && h.consumerName != "" {
		if pids, err := h.checker.ListRunningByName(ctx, h.consumerName); err == nil {
			meta["consumers"] = len(pids)
		} else {
			agentStatus = "degraded"
			agentErrors = append(agentErrors, "consumer_scan_failed")
		}
	}

	if h.monitor != nil {
		if err := h.monitor.Ping(ctx).Err(); err != nil {
			agentStatus = "degraded"
			agentErrors = append(agentErrors, "monitor_redis_offline")
		}
	}

	payload := types.HeartbeatPayload{
		ID:       h.nodeID,
		Service:  h.service,
		Language: metrics.Language,
		Version:  metrics.Version,
		PID:      metrics.PID,
		Hostname: hostname,
		Platform: metrics.Platform,
		CPU:      metrics.CPU,
		Memory:   metrics.Memory,
		Queues:   queues,
		Runtime: types.RuntimeInfo{
			Uptime:    metrics.Uptime,
			Framework: "Quasar",
			Status:    agentStatus,
			Errors:    agentErrors,
		},
		Meta:      meta,
		Timestamp: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := HeartbeatKey(h.service, h.nodeID)
	if err := h.transport.Set(ctx, key, data, keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}

	h.logger.Debug("Heartbeat sent", "key", key, "cpu", metrics.CPU.Process)
	return nil
}
