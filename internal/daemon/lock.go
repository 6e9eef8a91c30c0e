package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another graphmem process holds the run lock.
var ErrLocked = errors.New("another graphmem run is already active")

// RunLock is an exclusive advisory file lock.
type RunLock struct {
	path string
	lock *flock.Flock
}

// NewRunLock returns an unlocked lock at path.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock without waiting. It returns ErrLocked when another
// process holds it.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrLocked, l.path)
	}
	return nil
}

// Release drops the lock. Releasing an unlocked lock is a no-op.
func (l *RunLock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string { return l.path }
