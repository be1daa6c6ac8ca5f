package singleton

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempLockDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	original := getLockDirFunc
	getLockDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { getLockDirFunc = original })
}

func TestTryLock_SecondAcquirerIsRefused(t *testing.T) {
	withTempLockDir(t)

	first, err := New(InstanceLock)
	require.NoError(t, err)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer first.Unlock()

	second, err := New(InstanceLock)
	require.NoError(t, err)
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "a second process must not acquire a held lock")
}

func TestTryLock_AvailableAfterUnlock(t *testing.T) {
	withTempLockDir(t)

	first, err := New(StartupMutex)
	require.NoError(t, err)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.Unlock())

	second, err := New(StartupMutex)
	require.NoError(t, err)
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok, "lock must be acquirable again once released")
	require.NoError(t, second.Unlock())
}

func TestNew_DistinctNamesDoNotContend(t *testing.T) {
	withTempLockDir(t)

	instance, err := New(InstanceLock)
	require.NoError(t, err)
	ok, err := instance.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer instance.Unlock()

	startup, err := New(StartupMutex)
	require.NoError(t, err)
	ok, err = startup.TryLock()
	require.NoError(t, err)
	assert.True(t, ok, "distinct lock names must not contend with each other")
	defer startup.Unlock()
}

func TestGetLockDir_CreatesDirectory(t *testing.T) {
	if os.Getenv("CI_SKIP_FS_TESTS") != "" {
		t.Skip("filesystem lock directory test skipped")
	}
	dir, err := getLockDir()
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
