package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWithLock_Runs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "self21")

	ran := false
	err := WithLock(dir, time.Second, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("fn was not executed")
	}
}

func TestWithLock_PropagatesError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "self21")

	err := WithLock(dir, time.Second, func() error {
		return os.ErrPermission
	})
	if err != os.ErrPermission {
		t.Errorf("expected fn error to propagate, got %v", err)
	}
}

func TestWithLock_Contention(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "self21")

	release := make(chan struct{})
	held := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- WithLock(dir, time.Second, func() error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held

	// Second acquisition must time out while the first holds the lock.
	err := WithLock(dir, 300*time.Millisecond, func() error { return nil })
	if err == nil {
		t.Error("expected timeout while lock is held")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder returned error: %v", err)
	}

	// And succeed once released.
	if err := WithLock(dir, time.Second, func() error { return nil }); err != nil {
		t.Errorf("lock should be free after release: %v", err)
	}
}

func TestLockPath_SiblingOfCheckout(t *testing.T) {
	if got := LockPath("/work/self21"); got != "/work/self21.lock" {
		t.Errorf("LockPath() = %q", got)
	}
	if got := LockPath("/work/self21/"); got != "/work/self21.lock" {
		t.Errorf("LockPath() with trailing slash = %q", got)
	}
}
