// Package singleton provides the two named advisory locks the
// shim-governor protocol uses to keep auto-start races harmless:
// BuildGovernorInstance (guards the one-governor-per-host invariant) and
// BuildGovernorMutex (guards the auto-start sequence itself): one lock file
// per named lock on the host, exclusive and advisory.
package singleton

import "fmt"

// Lock is a cross-process, cross-platform advisory lock backed by a file.
type Lock interface {
	// Lock blocks until the lock is acquired.
	Lock() error

	// TryLock attempts to acquire the lock without blocking. It returns
	// (false, nil) if another process already holds it.
	TryLock() (bool, error)

	// Unlock releases the lock and closes its file, so a Lock is not
	// usable after Unlock.
	Unlock() error
}

// Well-known lock names from the shim-governor protocol's auto-start
// sequence.
const (
	InstanceLock = "BuildGovernorInstance"
	StartupMutex = "BuildGovernorMutex"
)

// getLockDirFunc is overridable in tests so they don't touch the real
// system lock directory.
var getLockDirFunc = getLockDir

// New creates a named advisory lock. The same name always resolves to the
// same file, so two processes naming the same lock contend for it.
func New(name string) (Lock, error) {
	dir, err := getLockDirFunc()
	if err != nil {
		return nil, fmt.Errorf("singleton: %w", err)
	}
	return newPlatformLock(dir, name)
}
