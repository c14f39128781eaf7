// Package lock guards the stat supervisor against concurrent instances.
//
// Locks are keyed by an operator supplied integer. A key of zero, the "none"
// driver, or a platform without flock all produce a Nop lock, which always
// acquires and never blocks anybody.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// InstanceLock is a non-blocking, process lifetime mutual exclusion guard.
type InstanceLock interface {
	// TryAcquire returns false, without error, when another instance holds
	// the lock.
	TryAcquire(ctx context.Context) (bool, error)
	// Release is best effort and safe to call more than once.
	Release(ctx context.Context) error
	// Enabled reports whether the lock actually excludes anything.
	Enabled() bool
}

// Driver names
const (
	DriverFile  = "file"
	DriverRedis = "redis"
	DriverNone  = "none"
)

// Options configures Open.
type Options struct {
	Driver string
	// Dir holds file locks. Defaults to os.TempDir().
	Dir string
	// Redis is required by the redis driver.
	Redis *redis.Client
	// TTL bounds how long a redis lock survives a crashed holder.
	TTL    time.Duration
	Logger *slog.Logger
}

// Open returns the lock for key according to opts.
func Open(key int64, opts Options) (InstanceLock, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if key == 0 || driver == "" || driver == DriverNone {
		return Nop{}, nil
	}

	switch driver {
	case DriverFile:
		dir := opts.Dir
		if dir == "" {
			dir = os.TempDir()
		}
		return newFileLock(dir, key, logger), nil
	case DriverRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis lock requires a redis client")
		}
		return NewRedisLock(opts.Redis, key, opts.TTL), nil
	default:
		return nil, fmt.Errorf("unknown lock driver: %s", driver)
	}
}

// Nop never excludes anything.
type Nop struct{}

func (Nop) TryAcquire(context.Context) (bool, error) { return true, nil }
func (Nop) Release(context.Context) error             { return nil }
func (Nop) Enabled() bool                             { return false }

var _ InstanceLock = Nop{}
