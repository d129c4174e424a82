package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockSuffix = ".lock"

// dayFileLock is an exclusive advisory lock on the sidecar file that guards
// one day file. The lock is Unix-only (flock).
type dayFileLock struct {
	path string // the guarded day file
	f    *os.File
}

// lockDayFile blocks until it holds the lock for the day file at path.
func lockDayFile(path string) (*dayFileLock, error) {
	name := filepath.Base(path)
	f, err := os.OpenFile(path+lockSuffix, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock for %s: %w", name, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", name, err)
	}
	return &dayFileLock{path: path, f: f}, nil
}

// Release drops the lock. Releasing twice is a no-op.
func (l *dayFileLock) Release() error {
	if l.f == nil {
		return nil
	}
	defer func() {
		l.f.Close()
		l.f = nil
	}()
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("unlocking %s: %w", filepath.Base(l.path), err)
	}
	return nil
}
