package source

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockPath returns the advisory lock file guarding a checkout directory.
// The lock is a sibling of the directory so removing the checkout does not
// remove the lock.
func LockPath(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// WithLock executes fn while holding an exclusive advisory lock on the
// checkout directory. Two invocations against the same checkout path would
// otherwise race on the working tree and the image tag namespace.
func WithLock(dir string, timeout time.Duration, fn func() error) error {
	if parent := filepath.Dir(LockPath(dir)); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fmt.Errorf("creating lock directory: %w", err)
		}
	}

	lockFile, err := os.OpenFile(LockPath(dir), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}
	defer lockFile.Close()

	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout acquiring checkout lock for %s (another build may be in progress)", dir)
		}
		time.Sleep(100 * time.Millisecond)
	}
	defer func() {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
	}()

	return fn()
}
