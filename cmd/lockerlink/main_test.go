package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jcapehart2/lockerlink/internal/config"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int {
		return run(args[0], args[1:])
	})
}

// writeTestConfig writes config.yaml into a fresh directory with its state
// database alongside and returns the directory.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := "service:\n  log_level: warn\nstate:\n  path: " + filepath.Join(dir, "state.db") + "\n" + extra
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

const integrationBlock = `integration:
  webhook_url: https://hooks.example.com/wc/ll_id_1/
  api_key: ll_sk_1
`

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "lockerlink version "+version)
}

func TestUnknownCommand(t *testing.T) {
	code, stdout, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")
	assert.Contains(t, stdout, "Usage:")
}

func TestNounWithoutAction(t *testing.T) {
	code, stdout, _ := runCLI(t, "webhooks")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Usage: lockerlink webhooks")

	code, _, stderr := runCLI(t, "config", "explode")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown config action: explode")
}

func TestConfigCheck(t *testing.T) {
	dir := writeTestConfig(t, "")

	code, stdout, stderr := runCLI(t, "config", "check", "--config", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Config OK")
	assert.Contains(t, stdout, "/lockerlink/v1/assignment-update")
	assert.Contains(t, stdout, "WARN: config is not locked")
}

func TestConfigCheckRejectsInvalid(t *testing.T) {
	dir := writeTestConfig(t, "mail:\n  driver: pigeon\n")

	code, _, stderr := runCLI(t, "config", "check", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "mail.driver")
}

func TestConfigLockAndTamper(t *testing.T) {
	dir := writeTestConfig(t, "")
	path := filepath.Join(dir, "config.yaml")

	code, stdout, stderr := runCLI(t, "config", "lock", "--config", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Locked "+path)
	assert.FileExists(t, filepath.Join(dir, config.ChecksumFile))

	code, stdout, _ = runCLI(t, "config", "check", "--config", path)
	assert.Equal(t, 0, code)
	assert.NotContains(t, stdout, "not locked")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("metrics:\n  enabled: true\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, _, stderr = runCLI(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "hash mismatch")

	// Re-locking an edited but valid file is allowed.
	code, _, stderr = runCLI(t, "config", "lock", "--config", path)
	require.Equal(t, 0, code, stderr)
	code, _, _ = runCLI(t, "config", "check", "--config", path)
	assert.Equal(t, 0, code)
}

func TestConfigLockRefusesInvalid(t *testing.T) {
	dir := writeTestConfig(t, "bus:\n  max_attempts: -1\n")

	code, _, stderr := runCLI(t, "config", "lock", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Config load error")
	assert.NoFileExists(t, filepath.Join(dir, config.ChecksumFile))
}

func TestWebhooksLifecycle(t *testing.T) {
	dir := writeTestConfig(t, integrationBlock)

	code, stdout, _ := runCLI(t, "webhooks", "list", "--config", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No webhooks registered")

	code, stdout, stderr := runCLI(t, "webhooks", "register", "--config", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Registered 2 webhooks for https://hooks.example.com/wc/ll_id_1")

	code, stdout, _ = runCLI(t, "webhooks", "list", "--config", dir)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, stdout, "order.created")
	assert.Contains(t, stdout, "order.updated")
	assert.Contains(t, stdout, "LockerLink - order.created")

	// Registering again replaces rather than duplicates.
	code, _, _ = runCLI(t, "webhooks", "register", "--config", dir)
	require.Equal(t, 0, code)
	code, stdout, _ = runCLI(t, "webhooks", "list", "--config", dir)
	require.Equal(t, 0, code)
	assert.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 2)

	code, stdout, _ = runCLI(t, "webhooks", "delete", "--config", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Webhooks deleted")

	code, stdout, _ = runCLI(t, "webhooks", "list", "--config", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No webhooks registered")
}

func TestWebhooksRegisterRequiresCredentials(t *testing.T) {
	dir := writeTestConfig(t, "")

	code, _, stderr := runCLI(t, "webhooks", "register", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Integration is not configured")
}

func TestPIDLockPath(t *testing.T) {
	cfg := config.Defaults()
	cfg.State.Path = "/var/lib/lockerlink/state.db"
	assert.Equal(t, "/var/lib/lockerlink/state.pid", pidLockPath(cfg))
}
