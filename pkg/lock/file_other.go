//go:build !unix

package lock

import "log/slog"

// No flock here: the lock step is skipped.
func newFileLock(_ string, _ int64, logger *slog.Logger) InstanceLock {
	logger.Debug("File locks unsupported on this platform, skipping instance lock")
	return Nop{}
}
