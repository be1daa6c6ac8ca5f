// Command govlink is the linker tool shim: it stands in for link.exe (or the
// platform's real linker), estimates a token cost from the command line
// (accounting for link-time code generation), and runs the real linker
// under governor admission control.
package main

import (
	"os"
	"strings"

	"github.com/buildgovernor/governor/app/shimrun"
)

func main() {
	cfg := shimrun.Config{
		ShimName:      "govlink",
		RealToolNames: realLinkerNames(),
		EnvOverride:   "LINK_REAL_PATH",
		EstimateCost:  estimateLinkCost,
		IsDiagnostic:  isLinkerDiagnostic,
	}
	os.Exit(shimrun.Run(cfg, os.Args[1:]))
}

func realLinkerNames() []string {
	if os.Getenv("GOVERNOR_TOOLCHAIN") == "gcc" {
		return []string{"ld"}
	}
	return []string{"link.exe", "link"}
}

// estimateLinkCost is the linker's token-cost heuristic: a baseline link
// costs 2 tokens (links are inherently heavier than a single-TU compile),
// doubled or tripled when link-time code generation is enabled since LTCG
// re-optimizes across the whole program at link time. Clamped to [2, 12].
func estimateLinkCost(args []string) int {
	cost := 2
	joined := strings.ToLower(strings.Join(args, " "))

	switch {
	case strings.Contains(joined, "/ltcg:incremental"):
		cost *= 2 // incremental LTCG: re-optimizes, but reuses prior state
	case strings.Contains(joined, "/ltcg") || strings.Contains(joined, "-flto"):
		cost *= 3 // full LTCG: whole-program re-optimization at link time
	}

	if strings.Contains(joined, "/debug") {
		cost += 1 // PDB generation holds extra symbol data resident
	}

	return clamp(cost, 2, 12)
}

// isLinkerDiagnostic reports whether a stderr line carries the linker's own
// diagnostic output.
func isLinkerDiagnostic(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{"error lnk", "fatal error lnk", "unresolved external", "error:", "warning:"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
