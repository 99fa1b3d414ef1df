package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "data", "lockerlink.pid")
	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := HolderPID(lockPath)
	if !ok || pid != os.Getpid() {
		t.Fatalf("HolderPID = %d, %v; want %d", pid, ok, os.Getpid())
	}
	if l.Path() != lockPath {
		t.Fatalf("Path = %q", l.Path())
	}
}

func TestSecondAcquireIsRefused(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "lockerlink.pid")
	first, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}

	if _, err := AcquirePIDLock(lockPath); !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	_ = again.Release()
}

func TestHolderPIDRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lockerlink.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := HolderPID(path); ok {
		t.Fatal("expected garbage pid to be rejected")
	}
	if _, ok := HolderPID(filepath.Join(t.TempDir(), "missing")); ok {
		t.Fatal("expected missing file to be rejected")
	}
}
