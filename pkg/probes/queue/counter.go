package queue

import (
	"context"
	"fmt"

	"github.com/gravito-framework/quasar-stat/pkg/config"
	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Counter reports how many messages are queued right now.
type Counter interface {
	QueueCount(ctx context.Context) (int64, error)
}

// NullCounter is used when no queue is configured. It always reports zero.
type NullCounter struct{}

// QueueCount returns 0.
func (NullCounter) QueueCount(context.Context) (int64, error) { return 0, nil }

// ProbeCounter sums the pending messages of a set of queue probes.
type ProbeCounter struct {
	probes []probes.QueueProbe
}

// NewProbeCounter creates a counter over the given probes
func NewProbeCounter(ps ...probes.QueueProbe) *ProbeCounter {
	return &ProbeCounter{probes: ps}
}

// Probes returns the underlying probes.
func (c *ProbeCounter) Probes() []probes.QueueProbe {
	return c.probes
}

// Snapshots collects a snapshot from every probe. The first probe error
// aborts the collection.
func (c *ProbeCounter) Snapshots(ctx context.Context) ([]types.QueueSnapshot, error) {
	snapshots := make([]types.QueueSnapshot, 0, len(c.probes))
	for _, probe := range c.probes {
		snapshot, err := probe.GetSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

// QueueCount returns the pending total across all probes.
func (c *ProbeCounter) QueueCount(ctx context.Context) (int64, error) {
	snapshots, err := c.Snapshots(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, s := range snapshots {
		total += s.Size.Pending()
	}
	return total, nil
}

// NewProbe builds the probe described by qc.
func NewProbe(client *redis.Client, qc config.QueueConfig) (probes.QueueProbe, error) {
	switch qc.Type {
	case "", config.QueueLaravel:
		return NewLaravelProbeWithPrefix(client, qc.Name, qc.Prefix), nil
	case config.QueueRedis:
		return NewRedisListProbe(client, qc.Name), nil
	default:
		return nil, fmt.Errorf("unsupported queue type %q for queue %s", qc.Type, qc.Name)
	}
}

// NewCounter builds a counter for the configured queues, or a NullCounter
// when there is nothing to monitor.
func NewCounter(client *redis.Client, queues []config.QueueConfig) (Counter, error) {
	if client == nil || len(queues) == 0 {
		return NullCounter{}, nil
	}

	ps := make([]probes.QueueProbe, 0, len(queues))
	for _, qc := range queues {
		probe, err := NewProbe(client, qc)
		if err != nil {
			return nil, err
		}
		ps = append(ps, probe)
	}
	return NewProbeCounter(ps...), nil
}

var (
	_ Counter = NullCounter{}
	_ Counter = (*ProbeCounter)(nil)
)
