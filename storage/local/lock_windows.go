//go:build windows

package local

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockFileExclusive acquires an exclusive non-blocking lock using LockFileEx.
func lockFileExclusive(f *os.File) error {
	h := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(h, flags, 0, 1, 0, ol); err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return errLockHeld
		}
		return err
	}
	return nil
}

// unlockFile releases the lock using UnlockFileEx.
func unlockFile(f *os.File) error {
	h := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(h, 0, 1, 0, ol)
}
