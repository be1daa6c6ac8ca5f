// Package pool implements the token pool and lease manager: the component
// that grants/denies lease requests, tracks outstanding leases with TTL,
// and reclaims tokens on release or expiry. A sync-guarded service with an
// explicit Start/Stop lifecycle and a background loop started through
// panichandler.SafeGo.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildgovernor/governor/app/core/budget"
	"github.com/buildgovernor/governor/app/core/classify"
	"github.com/buildgovernor/governor/app/core/probe"
	"github.com/buildgovernor/governor/app/panichandler"
)

// MaintenanceInterval is the period of the background sweep that refreshes
// the budget and reclaims expired leases, decoupled from request traffic.
const MaintenanceInterval = 500 * time.Millisecond

// AcquireOutcome is the result of TryAcquire.
type AcquireOutcome struct {
	Granted                bool
	LeaseID                string
	GrantedTokens          int
	RecommendedParallelism int
	Reason                 string
	CommitRatio            float64
}

// ReleaseOutcome is the result of Release.
type ReleaseOutcome struct {
	Acknowledged    bool
	Classification  classify.Classification
	Message         string
	ShouldRetry     bool
	RetryWithTokens int
}

// LeaseSummary is the trimmed-down view of a lease returned by Status.
type LeaseSummary struct {
	LeaseID          string
	Tool             string
	Tokens           int
	DurationSeconds  float64
	ExpiresInSeconds float64
}

// Status is a point-in-time snapshot of the pool.
type Status struct {
	TotalTokens            int
	AvailableTokens        int
	ActiveLeases           int
	ExpiredLeaseCount      int64
	Snapshot               probe.MemorySnapshot
	ThrottleLevel          budget.ThrottleLevel
	RecommendedParallelism int
	RecentLeases           []LeaseSummary
}

// Pool is the token pool and lease manager contract: it grants and denies
// lease requests, tracks outstanding leases, and reports point-in-time
// status.
type Pool interface {
	TryAcquire(ctx context.Context, tool string, requestedTokens int, timeout time.Duration) AcquireOutcome
	Release(leaseID string, peakWorkingSetBytes, peakCommitBytes uint64, exitCode int, duration time.Duration, stderrHadDiagnostics bool) ReleaseOutcome
	Status() Status
	Heartbeat(leaseID string) bool

	// Start begins the periodic maintenance sweep. Stop cancels it.
	Start()
	Stop()
}

type pool struct {
	mu sync.Mutex

	probe      probe.Probe
	cfg        budget.Config
	wts        classify.Weights
	budget     budget.Budget
	lastSample probe.MemorySnapshot

	totalTokens     int
	availableTokens int
	leases          map[string]*Lease
	recentClosed    []LeaseSummary
	expiredCount    int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Pool seeded with an initial budget computed from a fresh
// memory sample.
func New(p probe.Probe, cfg budget.Config, wts classify.Weights) Pool {
	pl := &pool{
		probe:  p,
		cfg:    cfg,
		wts:    wts,
		leases: make(map[string]*Lease),
	}
	snapshot := p.Sample()
	pl.budget = budget.Compute(snapshot, cfg)
	pl.totalTokens = pl.budget.TotalTokens
	pl.availableTokens = pl.budget.TotalTokens
	return pl
}

func (p *pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	panichandler.SafeGo("pool-maintenance", func() {
		defer p.wg.Done()
		p.maintenanceLoop(ctx)
	})
}

func (p *pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *pool) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(time.Now())
		}
	}
}

// tick refreshes the budget and sweeps the lease table. It is the sole
// mechanism that reclaims tokens held by crashed shims.
func (p *pool) tick(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recomputeBudgetLocked()

	for id, lease := range p.leases {
		if !lease.WarningLogged && now.Sub(lease.AcquiredAt) >= longRunningWarningAfter {
			slog.Warn("lease has been held for an unusually long time",
				"leaseId", id, "tool", lease.Tool, "elapsed", now.Sub(lease.AcquiredAt))
			lease.WarningLogged = true
		}

		if now.After(lease.ExpiresAt) || now.Equal(lease.ExpiresAt) {
			delete(p.leases, id)
			p.availableTokens += lease.Tokens
			if p.availableTokens > p.totalTokens {
				p.availableTokens = p.totalTokens
			}
			p.expiredCount++
			slog.Warn("lease reclaimed by TTL sweep", "leaseId", id, "tool", lease.Tool, "tokens", lease.Tokens)
		}
	}
}

// recomputeBudgetLocked refreshes the memory snapshot/budget and reconciles
// available tokens against outstanding leases: available = max(0, new total
// - in use), never revoking a lease already granted. Must be called with
// p.mu held.
func (p *pool) recomputeBudgetLocked() {
	snapshot := p.probe.Sample()
	newBudget := budget.Compute(snapshot, p.cfg)
	p.lastSample = snapshot

	inUse := p.totalTokens - p.availableTokens
	newAvailable := newBudget.TotalTokens - inUse
	if newAvailable < 0 {
		slog.Warn("budget shrank below outstanding leases; admissions throttled, no leases revoked",
			"totalTokens", newBudget.TotalTokens, "inUse", inUse)
		newAvailable = 0
	}

	p.budget = newBudget
	p.totalTokens = newBudget.TotalTokens
	p.availableTokens = newAvailable
}

// throttleDelay returns the spin-wait interval for a given throttle level.
func throttleDelay(level budget.ThrottleLevel) time.Duration {
	switch level {
	case budget.SoftStop:
		return 500 * time.Millisecond
	case budget.Caution:
		return 200 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

func (p *pool) TryAcquire(ctx context.Context, tool string, requestedTokens int, timeout time.Duration) AcquireOutcome {
	deadline := time.Now().Add(timeout)

	for {
		p.mu.Lock()
		p.recomputeBudgetLocked()

		if p.budget.ThrottleLevel == budget.HardStop {
			ratio := p.budget.AvailableCommitGB
			parallelism := p.budget.RecommendedParallelism
			p.mu.Unlock()
			return AcquireOutcome{
				Granted: false,
				Reason: fmt.Sprintf(
					"denied: commit pressure at hard-stop (available headroom %.2fGB); recommended parallelism %d",
					ratio, parallelism),
				RecommendedParallelism: parallelism,
			}
		}

		granted := requestedTokens
		if granted > p.availableTokens {
			granted = p.availableTokens
		}

		if granted > 0 || requestedTokens == 0 {
			id := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
			now := time.Now()
			commitRatio := p.lastSample.CommitRatio()
			lease := &Lease{
				ID:                   id,
				Tool:                 tool,
				Tokens:               granted,
				AcquiredAt:           now,
				ExpiresAt:            now.Add(LeaseTTL),
				CommitRatioAtAcquire: commitRatio,
			}
			p.leases[id] = lease
			p.availableTokens -= granted

			outcome := AcquireOutcome{
				Granted:                true,
				LeaseID:                id,
				GrantedTokens:          granted,
				RecommendedParallelism: p.budget.RecommendedParallelism,
				CommitRatio:            commitRatio,
			}
			p.mu.Unlock()
			return outcome
		}

		level := p.budget.ThrottleLevel
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return AcquireOutcome{Granted: false, Reason: "denied: timeout waiting for tokens"}
		}

		select {
		case <-ctx.Done():
			return AcquireOutcome{Granted: false, Reason: "denied: request canceled"}
		case <-time.After(throttleDelay(level)):
		}
	}
}

func (p *pool) Release(leaseID string, peakWorkingSetBytes, peakCommitBytes uint64, exitCode int, duration time.Duration, stderrHadDiagnostics bool) ReleaseOutcome {
	p.mu.Lock()
	lease, ok := p.leases[leaseID]
	if !ok {
		p.mu.Unlock()
		slog.Debug("release referenced an unknown lease id", "leaseId", leaseID)
		return ReleaseOutcome{Acknowledged: false}
	}

	delete(p.leases, leaseID)
	p.availableTokens += lease.Tokens
	if p.availableTokens > p.totalTokens {
		p.availableTokens = p.totalTokens
	}
	p.recordClosedLocked(lease, duration)

	snapshot := p.probe.Sample()
	p.mu.Unlock()

	peakCommitGB := float64(peakCommitBytes) / (1 << 30)
	peakRatio := snapshot.CommitRatio()
	if lease.CommitRatioAtAcquire > peakRatio {
		peakRatio = lease.CommitRatioAtAcquire
	}

	result := classify.Classify(classify.Input{
		ExitCode:                       exitCode,
		DurationMs:                     duration.Milliseconds(),
		CommitRatioAtExit:              snapshot.CommitRatio(),
		PeakCommitRatioDuringExecution: peakRatio,
		PeakProcessCommitGB:            peakCommitGB,
		StderrHadDiagnostics:           stderrHadDiagnostics,
		CommitChargeBytes:              snapshot.CommitCharge,
		CommitLimitBytes:               snapshot.CommitLimit,
		RecommendedParallelism:         budget.Compute(snapshot, p.cfg).RecommendedParallelism,
	}, p.wts)

	outcome := ReleaseOutcome{
		Acknowledged:   true,
		Classification: result.Classification,
		Message:        result.Message,
	}
	if result.ShouldRetry {
		outcome.ShouldRetry = true
		outcome.RetryWithTokens = lease.Tokens / 2
		if outcome.RetryWithTokens < 1 {
			outcome.RetryWithTokens = 1
		}
	}
	return outcome
}

// recordClosedLocked appends a trimmed summary to the recent-leases ring,
// capped at the ten most recent entries. Must be called with p.mu held.
func (p *pool) recordClosedLocked(lease *Lease, duration time.Duration) {
	summary := LeaseSummary{
		LeaseID:         lease.ID,
		Tool:            lease.Tool,
		Tokens:          lease.Tokens,
		DurationSeconds: duration.Seconds(),
	}
	p.recentClosed = append(p.recentClosed, summary)
	if len(p.recentClosed) > 10 {
		p.recentClosed = p.recentClosed[len(p.recentClosed)-10:]
	}
}

func (p *pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recomputeBudgetLocked()

	now := time.Now()
	recent := make([]LeaseSummary, 0, len(p.leases))
	for _, lease := range p.leases {
		recent = append(recent, LeaseSummary{
			LeaseID:          lease.ID,
			Tool:             lease.Tool,
			Tokens:           lease.Tokens,
			DurationSeconds:  now.Sub(lease.AcquiredAt).Seconds(),
			ExpiresInSeconds: lease.ExpiresAt.Sub(now).Seconds(),
		})
	}
	// Fill any remaining slots with the most recently closed leases, newest
	// first, so the view still shows recent activity once leases drain.
	for i := len(p.recentClosed) - 1; i >= 0 && len(recent) < 10; i-- {
		recent = append(recent, p.recentClosed[i])
	}

	if len(recent) > 10 {
		recent = recent[:10]
	}

	return Status{
		TotalTokens:            p.totalTokens,
		AvailableTokens:        p.availableTokens,
		ActiveLeases:           len(p.leases),
		ExpiredLeaseCount:      p.expiredCount,
		Snapshot:               p.probe.Sample(),
		ThrottleLevel:          p.budget.ThrottleLevel,
		RecommendedParallelism: p.budget.RecommendedParallelism,
		RecentLeases:           recent,
	}
}

func (p *pool) Heartbeat(leaseID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.leases[leaseID]
	return ok
}
