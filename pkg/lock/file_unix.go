//go:build unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory flock(2) lock on <dir>/quasar-stat-<key>.lock.
//
// flock locks belong to the open file description, so two FileLocks in the
// same process exclude each other just like two processes do.
type FileLock struct {
	path   string
	logger *slog.Logger
	file   *os.File
}

func newFileLock(dir string, key int64, logger *slog.Logger) InstanceLock {
	return NewFileLock(dir, key, logger)
}

// NewFileLock creates an unacquired file lock for key.
func NewFileLock(dir string, key int64, logger *slog.Logger) *FileLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLock{
		path:   filepath.Join(dir, fmt.Sprintf("quasar-stat-%d.lock", key)),
		logger: logger,
	}
}

// Path returns the lock file location.
func (l *FileLock) Path() string { return l.path }

// Enabled is always true for file locks.
func (l *FileLock) Enabled() bool { return true }

// Attempts before giving up on a lock file that keeps being replaced.
const maxLockAttempts = 5

// errStaleLock means the flock landed on a file that was unlinked (and maybe
// recreated) after we opened it.
var errStaleLock = errors.New("lock file replaced")

// TryAcquire takes the lock without blocking.
func (l *FileLock) TryAcquire(_ context.Context) (bool, error) {
	if l.file != nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return false, fmt.Errorf("open lock file: %w", err)
		}

		err = l.lock(f)
		switch {
		case err == nil:
			// Record the holder for operators; failure here is harmless.
			if err := f.Truncate(0); err == nil {
				_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			}
			l.file = f
			l.logger.Debug("Instance lock acquired", "path", l.path)
			return true, nil
		case errors.Is(err, unix.EWOULDBLOCK):
			_ = f.Close()
			return false, nil
		case errors.Is(err, errStaleLock):
			_ = f.Close()
			l.logger.Debug("Lock file replaced while locking, retrying", "path", l.path)
		default:
			_ = f.Close()
			return false, fmt.Errorf("flock %s: %w", l.path, err)
		}
	}

	return false, fmt.Errorf("lock file %s kept changing after %d attempts", l.path, maxLockAttempts)
}

// lock flocks f and checks that f is still the file at l.path. A holder
// unlinks the file on release, so a descriptor opened before that points at
// an orphaned inode that anybody can lock.
func (l *FileLock) lock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return err
	}

	held, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat lock file: %w", err)
	}
	current, err := os.Stat(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errStaleLock
		}
		return fmt.Errorf("stat lock path: %w", err)
	}
	if !os.SameFile(held, current) {
		return errStaleLock
	}
	return nil
}

// Release unlocks, closes and removes the lock file.
func (l *FileLock) Release(_ context.Context) error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	// Remove while still holding the lock so a waiter never sees a
	// half-released file.
	removeErr := os.Remove(l.path)
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()

	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", removeErr)
	}
	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	l.logger.Debug("Instance lock released", "path", l.path)
	return nil
}

var _ InstanceLock = (*FileLock)(nil)
