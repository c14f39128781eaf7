// Quasar Stat Inspect - prints what the supervisor sees and what it stored.
//
// Usage:
//
//	quasar-stat-inspect --name queue:work --storage-path quasar-stat.db
//	quasar-stat-inspect --redis-url redis://localhost:6379
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	iredis "github.com/gravito-framework/quasar-stat/internal/redis"
	"github.com/gravito-framework/quasar-stat/pkg/agent"
	"github.com/gravito-framework/quasar-stat/pkg/config"
	"github.com/gravito-framework/quasar-stat/pkg/probes"
	"github.com/gravito-framework/quasar-stat/pkg/storage"
	"github.com/gravito-framework/quasar-stat/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		name        string
		storagePath string
		redisURL    string
		limit       int
	)

	cmd := &cobra.Command{
		Use:          "quasar-stat-inspect",
		Short:        "Inspect consumers, stored snapshots and heartbeats",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := printConsumers(ctx, out, probes.NewGoProcessChecker(), name); err != nil {
				return err
			}

			if storagePath != "" {
				db, err := storage.OpenSQLite(storage.Config{Path: storagePath}, nil)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := printSnapshots(ctx, out, db, limit); err != nil {
					return err
				}
			}

			if redisURL != "" {
				client, err := iredis.NewClient(redisURL)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := printHeartbeats(ctx, out, client); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", config.DefaultConsumerName, "consumer command line match")
	flags.StringVar(&storagePath, "storage-path", "", "sqlite database written by quasar-stat")
	flags.StringVar(&redisURL, "redis-url", "", "transport Redis holding heartbeats")
	flags.IntVar(&limit, "limit", 10, "number of stored rows to print")

	return cmd
}

func printConsumers(ctx context.Context, w io.Writer, checker probes.ProcessChecker, name string) error {
	pids, err := checker.ListRunningByName(ctx, name)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	fmt.Fprintf(w, "Consumers matching %q: %d\n", name, len(pids))
	for _, pid := range pids {
		fmt.Fprintf(w, "  - %d\n", pid)
	}
	fmt.Fprintln(w)
	return nil
}

func printSnapshots(ctx context.Context, w io.Writer, db *storage.SQLite, limit int) error {
	snaps, err := db.Snapshots(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Queue snapshots (newest first):\n")
	for _, s := range snaps {
		fmt.Fprintf(w, "  %s  queue=%d  run=%s\n", s.Created.Format("2006-01-02 15:04:05"), s.Queue, s.RunID)
	}

	consumers, err := db.Consumers(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Consumer snapshots (newest first):\n")
	for _, c := range consumers {
		fmt.Fprintf(w, "  %s  consumers=%d  run=%s\n", c.Created.Format("2006-01-02 15:04:05"), c.Count(), c.RunID)
	}
	fmt.Fprintln(w)
	return nil
}

func printHeartbeats(ctx context.Context, w io.Writer, client *redis.Client) error {
	keys, err := client.Keys(ctx, agent.HeartbeatKey("*", "*")).Result()
	if err != nil {
		return err
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "Found %d Quasar nodes:\n\n", len(keys))
	for _, key := range keys {
		val, err := client.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var hb types.HeartbeatPayload
		if err := json.Unmarshal([]byte(val), &hb); err != nil {
			continue
		}

		fmt.Fprintf(w, "📍 Service: %s\n", hb.Service)
		fmt.Fprintf(w, "   Node ID: %s (%s)\n", hb.ID, hb.Runtime.Status)
		fmt.Fprintf(w, "   CPU: %.1f%% (system), %.2f%% (process), %d cores\n",
			hb.CPU.System, hb.CPU.Process, hb.CPU.Cores)
		if n, ok := hb.Meta["consumers"]; ok {
			fmt.Fprintf(w, "   Consumers: %v\n", n)
		}
		if len(hb.Runtime.Errors) > 0 {
			fmt.Fprintf(w, "   Errors: %s\n", strings.Join(hb.Runtime.Errors, ", "))
		}
		for _, q := range hb.Queues {
			fmt.Fprintf(w, "     - %s: waiting=%d, active=%d, delayed=%d, failed=%d\n",
				q.Name, q.Size.Waiting, q.Size.Active, q.Size.Delayed, q.Size.Failed)
		}
		fmt.Fprintln(w)
	}
	return nil
}
