package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// RunLock serializes link runs and pruning within one state directory.
type RunLock struct {
	file *os.File
}

func openLockFile(stateDir string) (*os.File, error) {
	locksDir := filepath.Join(stateDir, "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(locksDir, "run.lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return file, nil
}

// AcquireRunLock locks <stateDir>/locks/run.lock, blocking until it is free.
func AcquireRunLock(stateDir string) (*RunLock, error) {
	file, err := openLockFile(stateDir)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("lock run.lock: %w", err)
	}
	return &RunLock{file: file}, nil
}

// TryAcquireRunLock attempts to acquire the run lock without blocking.
// It reports false when another process holds the lock.
func TryAcquireRunLock(stateDir string) (*RunLock, bool, error) {
	file, err := openLockFile(stateDir)
	if err != nil {
		return nil, false, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if lockBusy(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock run.lock: %w", err)
	}
	return &RunLock{file: file}, true, nil
}

// lockBusy reports whether a non-blocking flock failed because another holder
// owns the lock.
func lockBusy(err error) bool {
	return errors.Is(err, syscall.EWOULDBLOCK)
}

// Release releases the lock.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
