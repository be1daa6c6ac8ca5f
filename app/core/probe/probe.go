// Package probe samples host and per-process memory state for the token
// budget engine and the tool shim lifecycle.
package probe

import (
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// MemorySnapshot is an immutable sample of host memory state. It is never
// mutated after creation.
type MemorySnapshot struct {
	TotalPhysical     uint64
	AvailablePhysical uint64
	CommitCharge      uint64
	CommitLimit       uint64
	MemoryLoadPercent int
	SampledAt         time.Time
}

// CommitRatio returns CommitCharge/CommitLimit, clamped to [0, 1].
func (s MemorySnapshot) CommitRatio() float64 {
	if s.CommitLimit == 0 {
		return 1.0
	}
	ratio := float64(s.CommitCharge) / float64(s.CommitLimit)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// worstCase is returned whenever the OS memory call fails: a probe failure
// is never fatal, it is "assume worst case".
func worstCase(now time.Time) MemorySnapshot {
	return MemorySnapshot{
		TotalPhysical:     1,
		AvailablePhysical: 0,
		CommitCharge:      1,
		CommitLimit:       1,
		MemoryLoadPercent: 100,
		SampledAt:         now,
	}
}

// ProcessMemory is the peak memory of a live child process, used by the
// shim while the real tool runs.
type ProcessMemory struct {
	PeakWorkingSetBytes uint64
	PeakPrivateBytes    uint64
}

// Probe exposes host and per-process memory sampling.
type Probe interface {
	// Sample reads host commit accounting in one call. It never returns an
	// error to the caller: on OS failure it returns a worst-case snapshot
	// and logs once.
	Sample() MemorySnapshot

	// SampleProcess returns peak working-set/private bytes for a live child.
	// It returns (ProcessMemory{}, false) if the process has exited or is
	// inaccessible.
	SampleProcess(pid int32, peak *ProcessMemory) (ProcessMemory, bool)
}

type probe struct {
	warnedUnavailable bool
}

// New creates a Probe backed by gopsutil.
func New() Probe {
	return &probe{}
}

func (p *probe) Sample() MemorySnapshot {
	now := time.Now()

	vm, err := mem.VirtualMemory()
	if err != nil {
		if !p.warnedUnavailable {
			slog.Warn("memory probe unavailable, assuming worst-case commit pressure", "error", err)
			p.warnedUnavailable = true
		}
		return worstCase(now)
	}
	p.warnedUnavailable = false

	// gopsutil's portable VirtualMemoryStat does not expose a literal
	// Windows "commit charge/limit" pair on every platform. We derive the
	// governor's one pressure signal — commit ratio — from total/available,
	// a recalibratable mapping that keeps the budget engine platform-agnostic.
	commitCharge := vm.Total - vm.Available
	commitLimit := vm.Total

	return MemorySnapshot{
		TotalPhysical:     vm.Total,
		AvailablePhysical: vm.Available,
		CommitCharge:      commitCharge,
		CommitLimit:       commitLimit,
		MemoryLoadPercent: int(vm.UsedPercent),
		SampledAt:         now,
	}
}

func (p *probe) SampleProcess(pid int32, peak *ProcessMemory) (ProcessMemory, bool) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ProcessMemory{}, false
	}

	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return ProcessMemory{}, false
	}

	current := ProcessMemory{
		PeakWorkingSetBytes: info.RSS,
		PeakPrivateBytes:    info.VMS,
	}

	if peak != nil {
		if current.PeakWorkingSetBytes > peak.PeakWorkingSetBytes {
			peak.PeakWorkingSetBytes = current.PeakWorkingSetBytes
		}
		if current.PeakPrivateBytes > peak.PeakPrivateBytes {
			peak.PeakPrivateBytes = current.PeakPrivateBytes
		}
		return *peak, true
	}

	return current, true
}
