// Package redis opens the Redis connections used by the supervisor.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient creates a client from a redis:// or rediss:// URL without
// touching the network.
func NewClient(rawURL string) (*goredis.Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty Redis URL")
	}

	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	return goredis.NewClient(opts), nil
}

// Ping checks the connection. Failures are logged, not returned: probes
// and the heartbeat report their own errors when they run.
func Ping(ctx context.Context, client *goredis.Client, role string, logger *slog.Logger) bool {
	if client == nil {
		return false
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("⚠️ Failed to connect to Redis", "role", role, "error", err)
		return false
	}
	return true
}

// CloseAll closes every distinct non-nil client.
func CloseAll(clients ...*goredis.Client) error {
	var result *multierror.Error
	seen := make(map[*goredis.Client]bool)

	for _, c := range clients {
		if c == nil || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
