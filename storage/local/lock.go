package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const lockFileName = ".narratekit.lock"

// errLockHeld reports that another process already holds the root lock.
var errLockHeld = errors.New("lock held by another process")

// Locker provides file-based locking for the audio root. It prevents
// two engine processes from writing the same storage directory at
// once.
type Locker struct {
	baseDir string
	file    *os.File
}

// NewLocker creates a Locker for the given audio root directory.
func NewLocker(baseDir string) *Locker {
	return &Locker{baseDir: baseDir}
}

// lockPath returns the full path to the lock file.
func (l *Locker) lockPath() string {
	return filepath.Join(l.baseDir, lockFileName)
}

// Lock acquires an exclusive file lock. Returns an error if the lock
// is already held by another process or if the locker already holds a lock.
func (l *Locker) Lock() error {
	if l.file != nil {
		return fmt.Errorf("locker already holds a lock")
	}

	if err := os.MkdirAll(l.baseDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create audio root: %w", err)
	}

	f, err := os.OpenFile(l.lockPath(), os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFileExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errLockHeld) {
			return fmt.Errorf(
				"audio root is in use by another engine process; "+
					"wait for it to finish or remove %s", l.lockPath())
		}
		return fmt.Errorf("failed to acquire audio root lock: %w", err)
	}

	l.file = f
	return nil
}

// Unlock releases the lock and removes the lock file.
// If no lock is held, Unlock is a no-op and returns nil.
func (l *Locker) Unlock() error {
	if l.file == nil {
		return nil
	}

	if err := unlockFile(l.file); err != nil {
		return fmt.Errorf("failed to release audio root lock: %w", err)
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	// Best-effort removal of the lock file.
	_ = os.Remove(l.lockPath())

	l.file = nil
	return nil
}
