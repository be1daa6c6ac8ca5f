package protocol

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/buildgovernor/governor/app/core/singleton"
)

// connectTimeout is the shim's initial, short-lived attempt to find an
// already-running governor before considering auto-start.
const connectTimeout = 2 * time.Second

// startupMutexWait bounds how long a shim waits to become the elected
// launcher before giving up and falling open.
const startupMutexWait = 5 * time.Second

// readinessPollInterval and readinessTimeout bound how long a shim waits
// for a freshly launched governor to start accepting connections.
const (
	readinessPollInterval = 200 * time.Millisecond
	readinessTimeout      = 3 * time.Second
)

// EnsureRunning implements the shim's fail-open connect-or-launch sequence:
// try to connect; if that fails, race other shims for the startup mutex,
// launch the governor in background mode if still needed, and poll for
// readiness. Any failure at any step returns an error — callers must treat
// that as "proceed ungoverned", never as fatal.
func EnsureRunning(endpoint, governorBinaryPath string) (*Client, error) {
	if c, err := Dial(endpoint, connectTimeout); err == nil {
		return c, nil
	}

	lock, err := singleton.New(singleton.StartupMutex)
	if err != nil {
		return nil, fmt.Errorf("protocol: acquire startup mutex: %w", err)
	}

	if !tryLockWithTimeout(lock, startupMutexWait) {
		// Another shim held the startup mutex for the whole wait and is
		// presumably launching the governor. Try to connect once more
		// rather than launch a second governor.
		return Dial(endpoint, connectTimeout)
	}
	defer lock.Unlock()

	// Re-check: the process that just released the mutex may have
	// already started the governor.
	if c, err := Dial(endpoint, 500*time.Millisecond); err == nil {
		return c, nil
	}

	slog.Info("no governor found, launching in background", "binary", governorBinaryPath)
	if err := launchBackground(governorBinaryPath); err != nil {
		return nil, fmt.Errorf("protocol: launch governor: %w", err)
	}

	deadline := time.Now().Add(readinessTimeout)
	for time.Now().Before(deadline) {
		if c, err := Dial(endpoint, readinessPollInterval); err == nil {
			return c, nil
		}
		time.Sleep(readinessPollInterval)
	}
	return nil, fmt.Errorf("protocol: governor did not become ready within %s", readinessTimeout)
}

// tryLockWithTimeout polls TryLock until it succeeds or timeout elapses.
func tryLockWithTimeout(lock singleton.Lock, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := lock.TryLock()
		if err == nil && ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// launchBackground starts the governor binary detached in --background
// mode, without waiting for it to exit.
func launchBackground(governorBinaryPath string) error {
	cmd := exec.Command(governorBinaryPath, "--background")
	detachProcess(cmd)
	return cmd.Start()
}
