//go:build !windows

package local

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFileExclusive acquires an exclusive non-blocking lock using flock(2).
func lockFileExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return errLockHeld
		}
		return err
	}
	return nil
}

// unlockFile releases the flock.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
