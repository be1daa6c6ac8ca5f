//go:build windows

package singleton

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// windowsLock uses Win32 LockFileEx/UnlockFileEx on a small marker file.
type windowsLock struct {
	handle windows.Handle
}

func newPlatformLock(dir, name string) (Lock, error) {
	path := filepath.Join(dir, name+".lock")

	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_ALWAYS,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("singleton: CreateFile: %w", err)
	}
	return &windowsLock{handle: h}, nil
}

func (l *windowsLock) Lock() error {
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(l.handle, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, ol); err != nil {
		return fmt.Errorf("singleton: LockFileEx: %w", err)
	}
	return nil
}

func (l *windowsLock) TryLock() (bool, error) {
	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	err := windows.LockFileEx(l.handle, flags, 0, 1, 0, ol)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return false, nil
	}
	return false, fmt.Errorf("singleton: try-lock: %w", err)
}

func (l *windowsLock) Unlock() error {
	ol := new(windows.Overlapped)
	if err := windows.UnlockFileEx(l.handle, 0, 1, 0, ol); err != nil {
		return fmt.Errorf("singleton: UnlockFileEx: %w", err)
	}
	return windows.CloseHandle(l.handle)
}

// getLockDir returns the system-wide directory lock files live in,
// creating it if necessary.
func getLockDir() (string, error) {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		return "", fmt.Errorf("%%ProgramData%% environment variable not set")
	}
	dir := filepath.Join(programData, "BuildGovernor", "locks")
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", fmt.Errorf("create lock directory %s: %w", dir, err)
	}
	return dir, nil
}
