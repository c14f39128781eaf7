package queue

import (
	"context"

	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/types"
	"github.com/redis/go-redis/v9"
)

const defaultLaravelPrefix = "queues"

// LaravelProbe monitors Laravel Queue with Redis driver
// Laravel uses specific key patterns:
//   - Waiting: queues:{name} (List)
//   - Delayed: queues:{name}:delayed (ZSet)
//   - Reserved (Active): queues:{name}:reserved (ZSet)
type LaravelProbe struct {
	client *redis.Client
	name   string
	prefix string
}

// NewLaravelProbe creates a probe for Laravel Queue
func NewLaravelProbe(client *redis.Client, queueName string) *LaravelProbe {
	return &LaravelProbe{
		client: client,
		name:   queueName,
		prefix: defaultLaravelPrefix,
	}
}

// NewLaravelProbeWithPrefix creates a probe with custom prefix
func NewLaravelProbeWithPrefix(client *redis.Client, queueName, prefix string) *LaravelProbe {
	if prefix == "" {
		prefix = defaultLaravelPrefix
	}
	return &LaravelProbe{
		client: client,
		name:   queueName,
		prefix: prefix,
	}
}

// GetSnapshot returns current Laravel queue state
func (p *LaravelProbe) GetSnapshot(ctx context.Context) (*types.QueueSnapshot, error) {
	keyWaiting := p.prefix + ":" + p.name
	keyDelayed := p.prefix + ":" + p.name + ":delayed"
	keyReserved := p.prefix + ":" + p.name + ":reserved"

	pipe := p.client.Pipeline()
	waitingCmd := pipe.LLen(ctx, keyWaiting)
	delayedCmd := pipe.ZCard(ctx, keyDelayed)
	reservedCmd := pipe.ZCard(ctx, keyReserved)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	// Failed jobs live in the database without Horizon.
	return &types.QueueSnapshot{
		Name:   p.name,
		Driver: types.DriverRedis,
		Size: types.QueueSize{
			Waiting: waitingCmd.Val(),
			Active:  reservedCmd.Val(),
			Delayed: delayedCmd.Val(),
		},
	}, nil
}

// Ensure LaravelProbe implements QueueProbe
var _ probes.QueueProbe = (*LaravelProbe)(nil)
