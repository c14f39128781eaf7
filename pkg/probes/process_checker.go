package probes

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// GoProcessChecker implements ProcessChecker using gopsutil
type GoProcessChecker struct {
	self int32
}

// NewGoProcessChecker creates a process checker for the local machine
func NewGoProcessChecker() *GoProcessChecker {
	return &GoProcessChecker{self: int32(os.Getpid())}
}

// Exists reports whether pid is running. Zombies count as gone: a dead
// parent that has not been reaped yet must still trigger shutdown.
func (c *GoProcessChecker) Exists(ctx context.Context, pid int32) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	ok, err := process.PidExistsWithContext(ctx, pid)
	if err != nil || !ok {
		return ok, err
	}

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		// Raced with exit.
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, err
	}

	status, err := p.StatusWithContext(ctx)
	if err != nil {
		// Status is not available everywhere; existence is enough.
		return true, nil
	}
	return !slices.Contains(status, process.Zombie), nil
}

// ListRunningByName scans the process table for command lines containing
// name, skipping this process.
func (c *GoProcessChecker) ListRunningByName(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var pids []int32
	for _, p := range procs {
		if p.Pid == c.self {
			continue
		}

		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}

		if strings.Contains(cmdline, name) {
			pids = append(pids, p.Pid)
		}
	}

	slices.Sort(pids)
	return pids, nil
}

// Ensure GoProcessChecker implements ProcessChecker
var _ ProcessChecker = (*GoProcessChecker)(nil)
