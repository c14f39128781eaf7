// Package storage persists queue statistics snapshots.
//
// It currently supports:
//   - sqlite: queue depth and consumer samples in two append-only tables
//   - none: discards everything (dry runs, tests)
package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Sink is the persistence API used by the snapshot tasks.
type Sink interface {
	RecordSnapshot(ctx context.Context, at time.Time, count int64) error
	RecordConsumers(ctx context.Context, at time.Time, pids []int32) error
	Close() error
}

// Config selects and configures the sink.
type Config struct {
	Driver string
	Path   string
	// RunID tags every row written during this run.
	RunID       string
	BusyTimeout time.Duration
}

// ErrClosed is returned when writing to a closed sink.
var ErrClosed = errors.New("storage closed")

// Open initializes the configured sink. Driver "none" (or empty) returns a
// Nop sink.
func Open(cfg Config, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none":
		return Nop{}, nil
	case "sqlite", "sqlite3":
		return OpenSQLite(cfg, logger)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordSnapshot(context.Context, time.Time, int64) error    { return nil }
func (Nop) RecordConsumers(context.Context, time.Time, []int32) error { return nil }
func (Nop) Close() error                                              { return nil }

var _ Sink = Nop{}
