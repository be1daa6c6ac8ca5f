// Package classify implements the post-exit failure classifier: a pure
// function that turns exit code, memory evidence, and stderr evidence into
// a human-actionable diagnosis.
package classify

import "fmt"

// Classification is one of the wire-level literal strings sent in a
// release response.
type Classification string

const (
	Success            Classification = "Success"
	NormalCompileError Classification = "NormalCompileError"
	LikelyOOM          Classification = "LikelyOOM"
	LikelyPagingDeath  Classification = "LikelyPagingDeath"
	Unknown            Classification = "Unknown"
)

// Weights are the empirical scoring constants, kept as named configuration
// rather than inlined literals so they can be tuned without touching the
// scoring algorithm's control flow.
type Weights struct {
	CommitRatioHard      float64
	CommitRatioElevated  float64
	PeakCommitRatio      float64
	PeakProcessCommit    float64
	SilentStderr         float64
	FastAndHeavy         float64
	OOMThreshold         float64
	PagingDeathThreshold float64
}

// DefaultWeights returns the documented default scoring weights and bands.
func DefaultWeights() Weights {
	return Weights{
		CommitRatioHard:      0.40,
		CommitRatioElevated:  0.25,
		PeakCommitRatio:      0.30,
		PeakProcessCommit:    0.20,
		SilentStderr:         0.20,
		FastAndHeavy:         0.15,
		OOMThreshold:         0.60,
		PagingDeathThreshold: 0.40,
	}
}

// Input aggregates everything the classifier needs, gathered by the pool's
// release() handler.
type Input struct {
	ExitCode                        int
	DurationMs                      int64
	CommitRatioAtExit               float64
	PeakCommitRatioDuringExecution  float64
	PeakProcessCommitGB             float64
	StderrHadDiagnostics            bool
	CommitChargeBytes               uint64
	CommitLimitBytes                uint64
	RecommendedParallelism          int
}

// Result is the classifier's verdict.
type Result struct {
	Classification Classification
	OOMEvidence    float64
	Message        string
	ShouldRetry    bool
}

// Classify is a pure function: same Input and Weights always yield the same
// Result.
func Classify(in Input, w Weights) Result {
	if in.ExitCode == 0 {
		return Result{Classification: Success}
	}

	evidence := 0.0

	if in.CommitRatioAtExit >= 0.92 {
		evidence += w.CommitRatioHard
	} else if in.CommitRatioAtExit >= 0.88 {
		evidence += w.CommitRatioElevated
	}

	if in.PeakCommitRatioDuringExecution >= 0.95 {
		evidence += w.PeakCommitRatio
	}

	if in.PeakProcessCommitGB >= 2.5 {
		evidence += w.PeakProcessCommit
	}

	if !in.StderrHadDiagnostics {
		evidence += w.SilentStderr
	}

	if in.DurationMs < 5000 && in.PeakProcessCommitGB >= 1.5 {
		evidence += w.FastAndHeavy
	}

	switch {
	case evidence >= w.OOMThreshold:
		return Result{
			Classification: LikelyOOM,
			OOMEvidence:    evidence,
			Message:        formatDiagnostic(LikelyOOM, in, evidence),
			ShouldRetry:    true,
		}
	case evidence >= w.PagingDeathThreshold:
		return Result{
			Classification: LikelyPagingDeath,
			OOMEvidence:    evidence,
			Message:        formatDiagnostic(LikelyPagingDeath, in, evidence),
			ShouldRetry:    true,
		}
	case in.StderrHadDiagnostics:
		return Result{Classification: NormalCompileError, OOMEvidence: evidence}
	default:
		return Result{
			Classification: Unknown,
			OOMEvidence:    evidence,
			Message:        "build governor: unable to determine the cause of this failure",
		}
	}
}

// formatDiagnostic renders the human-facing diagnosis: exit code, commit
// ratio/numbers at exit, peak process commit, the reasons that scored, and
// a parallelism recommendation in each common build driver's vocabulary.
func formatDiagnostic(kind Classification, in Input, evidence float64) string {
	label := "likely out-of-memory"
	if kind == LikelyPagingDeath {
		label = "likely paging death (severe memory pressure)"
	}

	reasons := reasonsFor(in)

	return fmt.Sprintf(
		"build governor: %s (exit code %d, evidence score %.2f)\n"+
			"  commit ratio at exit: %.2f (%d / %d bytes)\n"+
			"  peak process commit: %.2fGB\n"+
			"  contributing factors: %s\n"+
			"  recommendation: reduce parallelism, e.g. CMAKE_BUILD_PARALLEL_LEVEL=%d, /m:%d, or -j %d",
		label, in.ExitCode, evidence,
		in.CommitRatioAtExit, in.CommitChargeBytes, in.CommitLimitBytes,
		in.PeakProcessCommitGB,
		reasons,
		parallelism(in), parallelism(in), parallelism(in),
	)
}

func parallelism(in Input) int {
	if in.RecommendedParallelism < 1 {
		return 1
	}
	return in.RecommendedParallelism
}

func reasonsFor(in Input) string {
	var reasons []string
	if in.CommitRatioAtExit >= 0.92 {
		reasons = append(reasons, "commit ratio at exit above hard-stop")
	} else if in.CommitRatioAtExit >= 0.88 {
		reasons = append(reasons, "commit ratio at exit elevated")
	}
	if in.PeakCommitRatioDuringExecution >= 0.95 {
		reasons = append(reasons, "peak commit ratio during execution was critical")
	}
	if in.PeakProcessCommitGB >= 2.5 {
		reasons = append(reasons, "process peak commit exceeded 2.5GB")
	}
	if !in.StderrHadDiagnostics {
		reasons = append(reasons, "tool produced no diagnostic output of its own")
	}
	if in.DurationMs < 5000 && in.PeakProcessCommitGB >= 1.5 {
		reasons = append(reasons, "died quickly while holding significant memory")
	}
	if len(reasons) == 0 {
		return "none scored"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
