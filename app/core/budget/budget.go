// Package budget translates a memory snapshot into a token capacity and a
// throttle level. Compute is a pure function: same inputs, same outputs,
// no side effects, no clock.
package budget

import (
	"math"

	"github.com/buildgovernor/governor/app/core/probe"
)

// ThrottleLevel is the discrete state a commit ratio falls into.
type ThrottleLevel int

const (
	Normal ThrottleLevel = iota
	Caution
	SoftStop
	HardStop
)

func (t ThrottleLevel) String() string {
	switch t {
	case Normal:
		return "Normal"
	case Caution:
		return "Caution"
	case SoftStop:
		return "SoftStop"
	case HardStop:
		return "HardStop"
	default:
		return "Unknown"
	}
}

// Config is the set of knobs the budget engine is parameterized by. Callers
// must validate it (see app/core/validator) before passing it to Compute.
type Config struct {
	GBPerToken      float64
	SafetyReserveGB float64
	MinTokens       int
	MaxTokens       int
	CautionRatio    float64
	SoftStopRatio   float64
	HardStopRatio   float64
}

// DefaultConfig returns the governor's documented default thresholds.
func DefaultConfig() Config {
	return Config{
		GBPerToken:      2.0,
		SafetyReserveGB: 8.0,
		MinTokens:       1,
		MaxTokens:       32,
		CautionRatio:    0.80,
		SoftStopRatio:   0.88,
		HardStopRatio:   0.92,
	}
}

// Budget is the derived result of Compute(snapshot, config).
type Budget struct {
	TotalTokens            int
	ThrottleLevel          ThrottleLevel
	RecommendedParallelism int
	AvailableCommitGB      float64
}

const bytesPerGB = 1 << 30

// Compute derives a Budget from a memory snapshot and config. It never
// mutates its inputs and never observes the clock.
func Compute(snapshot probe.MemorySnapshot, cfg Config) Budget {
	availableCommitGB := 0.0
	if snapshot.CommitLimit > snapshot.CommitCharge {
		availableCommitGB = float64(snapshot.CommitLimit-snapshot.CommitCharge) / bytesPerGB
	}

	usable := availableCommitGB - cfg.SafetyReserveGB
	if usable < 0 {
		usable = 0
	}

	totalTokens := clamp(int(math.Floor(usable/cfg.GBPerToken)), cfg.MinTokens, cfg.MaxTokens)

	ratio := snapshot.CommitRatio()
	var level ThrottleLevel
	switch {
	case ratio >= cfg.HardStopRatio:
		level = HardStop
	case ratio >= cfg.SoftStopRatio:
		level = SoftStop
	case ratio >= cfg.CautionRatio:
		level = Caution
	default:
		level = Normal
	}

	recommendedParallelism := int(math.Floor(usable / 3.0))
	if recommendedParallelism < 1 {
		recommendedParallelism = 1
	}

	return Budget{
		TotalTokens:            totalTokens,
		ThrottleLevel:          level,
		RecommendedParallelism: recommendedParallelism,
		AvailableCommitGB:      availableCommitGB,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
