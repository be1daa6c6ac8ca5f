// Command govcl is the compiler tool shim: it stands in for cl.exe (or the
// platform's real C/C++ compiler), estimates a token cost from the command
// line, and runs the real compiler under governor admission control.
package main

import (
	"os"
	"strings"

	"github.com/buildgovernor/governor/app/shimrun"
)

func main() {
	cfg := shimrun.Config{
		ShimName:      "govcl",
		RealToolNames: realCompilerNames(),
		EnvOverride:   "CL_REAL_PATH",
		EstimateCost:  estimateCompileCost,
		IsDiagnostic:  isCompilerDiagnostic,
	}
	os.Exit(shimrun.Run(cfg, os.Args[1:]))
}

func realCompilerNames() []string {
	if os.Getenv("GOVERNOR_TOOLCHAIN") == "gcc" {
		return []string{"g++", "gcc"}
	}
	return []string{"cl.exe", "cl"}
}

// estimateCompileCost is the compiler's token-cost heuristic: a single
// translation unit costs 1 token by default, with extra tokens added for
// known-expensive patterns. Clamped to [1, 8].
func estimateCompileCost(args []string) int {
	cost := 1

	joined := strings.ToLower(strings.Join(args, " "))

	if strings.Contains(joined, "/gl") || strings.Contains(joined, "-flto") {
		cost += 2 // whole-program optimization makes the frontend pass heavier
	}
	if strings.Contains(joined, "/bigobj") {
		cost += 1
	}

	for _, arg := range args {
		lower := strings.ToLower(arg)
		if isTemplateHeavyPath(lower) {
			cost += 2
			break
		}
	}

	return clamp(cost, 1, 8)
}

// isTemplateHeavyPath flags source paths that conventionally house
// template-instantiation-heavy code (paths containing "boost", a
// "templates" directory, or "_generated") known to inflate compiler memory
// use well beyond a typical TU.
func isTemplateHeavyPath(path string) bool {
	for _, marker := range []string{"boost", "/templates/", "\\templates\\", "_generated"} {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// isCompilerDiagnostic reports whether a stderr line carries the compiler's
// own diagnostic output, as opposed to silence or unrelated noise.
func isCompilerDiagnostic(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{" error ", "error:", "error c", "warning:", "warning c", "fatal error"} {
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
