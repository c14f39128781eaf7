// Package queue provides queue probe implementations and the queue counter
// fed to the statistics snapshot task.
package queue

import (
	"context"
	"strings"

	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisListProbe monitors a simple Redis List queue
type RedisListProbe struct {
	client *redis.Client
	name   string
}

// NewRedisListProbe creates a probe for a Redis List queue
func NewRedisListProbe(client *redis.Client, queueName string) *RedisListProbe {
	return &RedisListProbe{
		client: client,
		name:   queueName,
	}
}

// GetSnapshot returns current queue state
func (p *RedisListProbe) GetSnapshot(ctx context.Context) (*types.QueueSnapshot, error) {
	// {queue}:failed, {queue}:delayed and {queue}:active are conventions,
	// missing keys simply count as empty. Only the queue itself must be a
	// list; side keys of another type are sized by their type.
	pipe := p.client.Pipeline()
	waitingCmd := pipe.LLen(ctx, p.name)
	failedCmd := pipe.LLen(ctx, p.name+":failed")
	delayedCmd := pipe.LLen(ctx, p.name+":delayed")
	activeCmd := pipe.LLen(ctx, p.name+":active")

	// Per-command errors are inspected below.
	_, _ = pipe.Exec(ctx)

	if err := waitingCmd.Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	return &types.QueueSnapshot{
		Name:   p.name,
		Driver: types.DriverRedis,
		Size: types.QueueSize{
			Waiting: waitingCmd.Val(),
			Active:  p.sideLen(ctx, p.name+":active", activeCmd),
			Failed:  p.sideLen(ctx, p.name+":failed", failedCmd),
			Delayed: p.sideLen(ctx, p.name+":delayed", delayedCmd),
		},
	}, nil
}

// sideLen returns the LLEN result, or the size of a sorted set or set stored
// under key when LLEN hit WRONGTYPE. Anything else counts as empty.
func (p *RedisListProbe) sideLen(ctx context.Context, key string, cmd *redis.IntCmd) int64 {
	err := cmd.Err()
	if err == nil {
		return cmd.Val()
	}
	if !strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return 0
	}

	switch p.client.Type(ctx, key).Val() {
	case "zset":
		return p.client.ZCard(ctx, key).Val()
	case "set":
		return p.client.SCard(ctx, key).Val()
	default:
		return 0
	}
}

// Ensure RedisListProbe implements QueueProbe
var _ probes.QueueProbe = (*RedisListProbe)(nil)
