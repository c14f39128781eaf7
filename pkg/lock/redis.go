package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

const (
	redisKeyPrefix = "gravito:quasar:lock:"
	defaultTTL     = 2 * time.Hour
)

// Deletes the key only while it still carries our token, so a lock that
// expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX lock shared by every host using the same Redis.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	held   bool
}

// NewRedisLock creates an unacquired lock for key. ttl <= 0 uses two hours.
func NewRedisLock(client *redis.Client, key int64, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLock{
		client: client,
		key:    redisKeyPrefix + strconv.FormatInt(key, 10),
		token:  xid.New().String(),
		ttl:    ttl,
	}
}

// Key returns the Redis key backing the lock.
func (l *RedisLock) Key() string { return l.key }

// Enabled is always true for redis locks.
func (l *RedisLock) Enabled() bool { return true }

// TryAcquire sets the key if nobody holds it.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.held {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	l.held = ok
	return ok, nil
}

// Release deletes the key if it still belongs to this lock.
func (l *RedisLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	return nil
}

var _ InstanceLock = (*RedisLock)(nil)
