package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildgovernor/governor/app/core/budget"
	"github.com/buildgovernor/governor/app/core/classify"
	"github.com/buildgovernor/governor/app/core/probe"
)

// fakeProbe returns a fixed, mutable MemorySnapshot so tests can drive the
// pool's budget reconciliation deterministically instead of depending on
// live host memory.
type fakeProbe struct {
	mu       sync.Mutex
	snapshot probe.MemorySnapshot
}

func newFakeProbe(snapshot probe.MemorySnapshot) *fakeProbe {
	return &fakeProbe{snapshot: snapshot}
}

func (f *fakeProbe) set(snapshot probe.MemorySnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snapshot
}

func (f *fakeProbe) Sample() probe.MemorySnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeProbe) SampleProcess(_ int32, peak *probe.ProcessMemory) (probe.ProcessMemory, bool) {
	if peak != nil {
		return *peak, true
	}
	return probe.ProcessMemory{}, false
}

func gib(n uint64) uint64 { return n * (1 << 30) }

func TestTryAcquire_AdmissionUnderPressure(t *testing.T) {
	// 48GiB limit, 45.2GiB charge -> HardStop, denied.
	p := newFakeProbe(probe.MemorySnapshot{
		CommitLimit:  gib(48),
		CommitCharge: uint64(45.2 * float64(gib(1))),
	})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	outcome := pl.TryAcquire(context.Background(), "cl.exe", 1, 10*time.Millisecond)

	assert.False(t, outcome.Granted)
	assert.NotEmpty(t, outcome.Reason)
}

func TestTryAcquire_NormalCompileGrantsTokens(t *testing.T) {
	// moderate commit pressure, well under any throttle threshold.
	p := newFakeProbe(probe.MemorySnapshot{
		CommitLimit:  gib(64),
		CommitCharge: uint64(0.55 * float64(gib(64))),
	})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	outcome := pl.TryAcquire(context.Background(), "cl.exe", 1, time.Second)

	require.True(t, outcome.Granted)
	assert.NotEmpty(t, outcome.LeaseID)
	assert.Equal(t, 1, outcome.GrantedTokens)
}

func TestTryAcquire_TokenConservationAcrossConcurrentCallers(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	cfg := budget.DefaultConfig()
	cfg.MinTokens = 4
	cfg.MaxTokens = 4
	pl := New(p, cfg, classify.DefaultWeights())

	const callers = 20
	var wg sync.WaitGroup
	granted := make([]bool, callers)
	leaseIDs := make([]string, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := pl.TryAcquire(context.Background(), "cl.exe", 1, 20*time.Millisecond)
			granted[i] = outcome.Granted
			leaseIDs[i] = outcome.LeaseID
		}(i)
	}
	wg.Wait()

	grantedCount := 0
	seen := map[string]bool{}
	for i, g := range granted {
		if g {
			grantedCount++
			require.False(t, seen[leaseIDs[i]], "duplicate lease id %s", leaseIDs[i])
			seen[leaseIDs[i]] = true
		}
	}
	assert.Equal(t, 4, grantedCount, "exactly MaxTokens leases should be granted when tokens are scarce")

	status := pl.Status()
	assert.Equal(t, 4, status.ActiveLeases)
	assert.Equal(t, 0, status.AvailableTokens)
}

func TestRelease_ReturnsTokensAndClassifies(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	acquired := pl.TryAcquire(context.Background(), "cl.exe", 1, time.Second)
	require.True(t, acquired.Granted)

	outcome := pl.Release(acquired.LeaseID, gib(1), gib(1), 0, 2*time.Second, false)

	assert.True(t, outcome.Acknowledged)
	assert.Equal(t, classify.Success, outcome.Classification)
	assert.False(t, outcome.ShouldRetry)

	status := pl.Status()
	assert.Equal(t, 0, status.ActiveLeases)
	assert.Equal(t, status.TotalTokens, status.AvailableTokens)
}

func TestStatus_RecentLeasesIncludesClosedLeases(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	acquired := pl.TryAcquire(context.Background(), "cl.exe", 1, time.Second)
	require.True(t, acquired.Granted)
	pl.Release(acquired.LeaseID, gib(1), gib(1), 0, time.Second, false)

	status := pl.Status()
	assert.Equal(t, 0, status.ActiveLeases)
	require.Len(t, status.RecentLeases, 1)
	assert.Equal(t, acquired.LeaseID, status.RecentLeases[0].LeaseID)
	assert.Equal(t, "cl.exe", status.RecentLeases[0].Tool)
}

func TestRelease_UnknownLeaseIsNotAcknowledged(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	outcome := pl.Release("does-not-exist", 0, 0, 1, time.Second, true)
	assert.False(t, outcome.Acknowledged)
}

func TestRelease_LikelyOOMRecommendsRetryWithHalfTokens(t *testing.T) {
	// Acquire under normal pressure; commit then climbs to 0.93 before exit.
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(48), CommitCharge: gib(10)})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	acquired := pl.TryAcquire(context.Background(), "cl.exe", 4, time.Second)
	require.True(t, acquired.Granted)

	p.set(probe.MemorySnapshot{CommitLimit: gib(48), CommitCharge: uint64(0.93 * float64(gib(48)))})

	outcome := pl.Release(acquired.LeaseID, gib(3), uint64(3.1*float64(gib(1))), 1, 4200*time.Millisecond, false)

	assert.Equal(t, classify.LikelyOOM, outcome.Classification)
	assert.True(t, outcome.ShouldRetry)
	assert.Equal(t, acquired.GrantedTokens/2, outcome.RetryWithTokens)
}

func TestMaintenance_ReclaimsExpiredLeaseByTTL(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())
	internal := pl.(*pool)

	acquired := pl.TryAcquire(context.Background(), "cl.exe", 1, time.Second)
	require.True(t, acquired.Granted)

	// Force the lease to have already expired, then run the sweep directly
	// rather than waiting out the real 30 minute TTL.
	internal.mu.Lock()
	internal.leases[acquired.LeaseID].ExpiresAt = time.Now().Add(-time.Second)
	internal.mu.Unlock()

	internal.tick(time.Now())

	status := pl.Status()
	assert.Equal(t, 0, status.ActiveLeases)
	assert.EqualValues(t, 1, status.ExpiredLeaseCount)
	assert.Equal(t, status.TotalTokens, status.AvailableTokens)
}

func TestRecomputeBudget_ShrinkingBudgetClampsAvailableWithoutRevokingLeases(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	cfg := budget.DefaultConfig()
	cfg.MinTokens = 1
	cfg.MaxTokens = 32
	pl := New(p, cfg, classify.DefaultWeights())
	internal := pl.(*pool)

	acquired := pl.TryAcquire(context.Background(), "cl.exe", 20, time.Second)
	require.True(t, acquired.Granted)
	require.Greater(t, acquired.GrantedTokens, 0)

	// Memory pressure spikes: the budget shrinks below what is outstanding.
	p.set(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: uint64(0.95 * float64(gib(64)))})

	internal.mu.Lock()
	internal.recomputeBudgetLocked()
	availableAfter := internal.availableTokens
	internal.mu.Unlock()

	assert.Equal(t, 0, availableAfter, "available tokens must clamp to zero, never negative")

	status := pl.Status()
	assert.Equal(t, 1, status.ActiveLeases, "existing lease must not be revoked by a budget shrink")
}

func TestHeartbeat_UnknownLeaseReturnsFalse(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	assert.False(t, pl.Heartbeat("nonexistent"))
}

func TestHeartbeat_KnownLeaseReturnsTrue(t *testing.T) {
	p := newFakeProbe(probe.MemorySnapshot{CommitLimit: gib(64), CommitCharge: gib(10)})
	pl := New(p, budget.DefaultConfig(), classify.DefaultWeights())

	acquired := pl.TryAcquire(context.Background(), "cl.exe", 1, time.Second)
	require.True(t, acquired.Granted)

	assert.True(t, pl.Heartbeat(acquired.LeaseID))
}
