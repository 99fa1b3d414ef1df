package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureLocalFilesystemAllowsLocal(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "lockerlink.db")
	err := ensureLocalFilesystemWith(dbPath, func(string) (string, error) { return "ext4", nil })
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestEnsureLocalFilesystemRejectsNetwork(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "lockerlink.db")
	err := ensureLocalFilesystemWith(dbPath, func(string) (string, error) { return "NFS", nil })
	if err == nil {
		t.Fatal("expected network filesystem error")
	}
	if !strings.Contains(err.Error(), "state.path") {
		t.Fatalf("error should point at state.path, got %q", err.Error())
	}
}

func TestEnsureLocalFilesystemInspectsNearestExistingParent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "a", "b", "lockerlink.db")

	var inspected string
	err := ensureLocalFilesystemWith(dbPath, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inspected != root {
		t.Fatalf("inspected %q, want %q", inspected, root)
	}
}

func TestEnsureLocalFilesystemDetectorError(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "lockerlink.db")
	err := ensureLocalFilesystemWith(dbPath, func(string) (string, error) { return "", errors.New("boom") })
	if err == nil {
		t.Fatal("expected detector error to surface")
	}
}
