// Package probes provides interfaces and implementations for collecting metrics.
package probes

import (
	"context"

	"github.com/gravito-framework/quasar-stat/pkg/types"
)

// SystemProbe collects system and process metrics (CPU, Memory, etc.)
type SystemProbe interface {
	GetMetrics() (*SystemMetrics, error)
}

// SystemMetrics contains the collected system information
type SystemMetrics struct {
	Language types.Language
	Version  string
	PID      int
	Hostname string
	Platform string
	Uptime   float64 // seconds
	CPU      types.CPUMetrics
	Memory   types.MemoryMetrics
}

// QueueProbe collects queue state snapshot
type QueueProbe interface {
	GetSnapshot(ctx context.Context) (*types.QueueSnapshot, error)
}

// ProcessChecker answers questions about the local process table.
type ProcessChecker interface {
	// Exists reports whether pid names a running process.
	Exists(ctx context.Context, pid int32) (bool, error)
	// ListRunningByName returns the sorted PIDs whose command line
	// contains name.
	ListRunningByName(ctx context.Context, name string) ([]int32, error)
}
