// Package shimrun implements the nine-step tool shim lifecycle shared by
// every intercepted build tool: locate the real tool, estimate its token
// cost, acquire a lease (falling open on any governor trouble), run the
// real tool while sampling its memory, release the lease, and propagate
// its exit code.
package shimrun

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/buildgovernor/governor/app/core/config"
	"github.com/buildgovernor/governor/app/core/probe"
	"github.com/buildgovernor/governor/app/core/protocol"
	"github.com/buildgovernor/governor/app/panichandler"
)

// acquireTimeout bounds how long the governor should wait before denying a
// token request; sampleInterval and stderrDigestCap bound the per-invocation
// memory sampling cadence and stderr digest size.
const (
	acquireTimeout = 60 * time.Second

	sampleInterval  = 100 * time.Millisecond // ~10 Hz
	stderrDigestCap = 500
)

// Config distinguishes the compiler shim from the linker shim: everything
// else in the lifecycle is identical.
type Config struct {
	// ShimName is this shim's own binary name, e.g. "govcl" or "govlink".
	ShimName string
	// RealToolNames are the executable names to search PATH for, in order
	// (e.g. ["cl.exe", "cl"]).
	RealToolNames []string
	// EnvOverride is an environment variable that, if set, names the real
	// tool directly and skips the PATH scan.
	EnvOverride string
	// EstimateCost returns the token cost for this invocation, already
	// clamped to this shim's valid range.
	EstimateCost func(args []string) int
	// IsDiagnostic reports whether a line of stderr counts as the tool's
	// own diagnostic output.
	IsDiagnostic func(line string) bool
}

// Run executes the full lifecycle for one invocation and returns the exit
// code the shim's process should exit with.
func Run(cfg Config, args []string) int {
	realTool, err := locateRealTool(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cfg.ShimName, err)
		return 1
	}

	tokens := cfg.EstimateCost(args)
	hash := argsHash(args)

	client, leaseID, granted := tryAcquire(cfg, tokens, hash, args)
	if client != nil {
		defer client.Close()
	}

	start := time.Now()
	exitCode, peak, stderrDigest, hadDiagnostics, runErr := runChild(realTool, args, cfg.IsDiagnostic)
	duration := time.Since(start)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cfg.ShimName, runErr)
		return 1
	}

	if granted && client != nil {
		reportRelease(client, leaseID, peak, exitCode, duration, hadDiagnostics, stderrDigest)
	}

	return exitCode
}

// locateRealTool finds the real tool binary, preferring an explicit env
// override, then scanning PATH while excluding the shim's own directory so
// the shim never invokes itself.
func locateRealTool(cfg Config) (string, error) {
	if cfg.EnvOverride != "" {
		if p := os.Getenv(cfg.EnvOverride); p != "" {
			return p, nil
		}
	}

	selfDir := ""
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			selfDir = filepath.Dir(resolved)
		} else {
			selfDir = filepath.Dir(exe)
		}
	}

	pathDirs := filepath.SplitList(os.Getenv("PATH"))
	for _, name := range cfg.RealToolNames {
		for _, dir := range pathDirs {
			if dir == "" {
				continue
			}
			if canonicalDir(dir) == canonicalDir(selfDir) {
				continue
			}
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("could not locate real tool among %v on PATH", cfg.RealToolNames)
}

func canonicalDir(dir string) string {
	if dir == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved
	}
	return dir
}

// argsHash is a stable, short, non-cryptographic hash of the argument
// vector, used only for logging/dedup.
func argsHash(args []string) string {
	h := fnv.New64a()
	_, _ = io.WriteString(h, strings.Join(args, "\x00"))
	return fmt.Sprintf("%016x", h.Sum64())
}

// tryAcquire connects to the governor (auto-starting it if necessary) and
// requests tokens. Any failure at any step degrades to running ungoverned;
// this function never returns an error. The client is nil when no governor
// could be reached; granted is false when the acquire failed or was denied.
func tryAcquire(cfg Config, tokens int, argsHashValue string, args []string) (client *protocol.Client, leaseID string, granted bool) {
	debug := os.Getenv("GOV_DEBUG") == "1"

	endpoint := config.DefaultEndpointPath()
	c, err := protocol.EnsureRunning(endpoint, governorBinaryPath())
	if err != nil {
		if debug {
			fmt.Fprintf(os.Stderr, "%s: running ungoverned, governor unavailable: %v\n", cfg.ShimName, err)
		}
		slog.Debug("shim running ungoverned: governor unavailable", "shim", cfg.ShimName, "error", err)
		return nil, "", false
	}

	resp, err := c.Acquire(protocol.AcquireRequest{
		Tool:            cfg.ShimName,
		ArgsHash:        argsHashValue,
		RequestedTokens: tokens,
		TimeoutMs:       int(acquireTimeout / time.Millisecond),
		SourceFile:      primarySourceFile(args),
	})
	if err != nil {
		if debug {
			fmt.Fprintf(os.Stderr, "%s: running ungoverned, acquire failed: %v\n", cfg.ShimName, err)
		}
		slog.Debug("shim running ungoverned: acquire failed", "shim", cfg.ShimName, "error", err)
		return c, "", false
	}
	if !resp.Granted {
		slog.Info("governor denied tokens, proceeding ungoverned", "shim", cfg.ShimName, "reason", resp.Reason)
		return c, "", false
	}

	return c, resp.LeaseID, true
}

// primarySourceFile is a best-effort guess at the compiled/linked source
// file for logging: the last argument that does not look like a flag.
func primarySourceFile(args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		if !strings.HasPrefix(args[i], "-") && !strings.HasPrefix(args[i], "/") {
			return args[i]
		}
	}
	return ""
}

// runChild spawns the real tool, forwards its stdout/stderr live, tees
// stderr into a bounded digest, samples its memory at ~10 Hz, and waits
// for it to exit.
func runChild(realTool string, args []string, isDiagnostic func(string) bool) (exitCode int, peak probe.ProcessMemory, stderrDigest string, hadDiagnostics bool, err error) {
	cmd := exec.Command(realTool, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return 1, probe.ProcessMemory{}, "", false, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 1, probe.ProcessMemory{}, "", false, fmt.Errorf("start %s: %w", realTool, err)
	}

	var digestBuf bytes.Buffer
	var diagnosticSeen bool
	var wg sync.WaitGroup
	wg.Add(1)
	panichandler.SafeGo("shim-stderr-tee", func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			fmt.Fprintln(os.Stderr, line)
			if digestBuf.Len() < stderrDigestCap {
				digestBuf.WriteString(line)
				digestBuf.WriteByte('\n')
			}
			if isDiagnostic(line) {
				diagnosticSeen = true
			}
		}
	})

	peak = sampleUntilExit(cmd)
	wg.Wait()

	waitErr := cmd.Wait()
	code := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			return 1, peak, truncateDigest(digestBuf.String()), diagnosticSeen, fmt.Errorf("wait for %s: %w", realTool, waitErr)
		}
	}

	return code, peak, truncateDigest(digestBuf.String()), diagnosticSeen, nil
}

func truncateDigest(s string) string {
	if len(s) > stderrDigestCap {
		return s[:stderrDigestCap]
	}
	return s
}

// sampleUntilExit polls the child's memory at ~10 Hz, tracking the peak,
// until the process is no longer observable (it has exited).
func sampleUntilExit(cmd *exec.Cmd) probe.ProcessMemory {
	p := probe.New()
	var peak probe.ProcessMemory
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for range ticker.C {
		if cmd.Process == nil {
			break
		}
		current, ok := p.SampleProcess(int32(cmd.Process.Pid), &peak)
		if !ok {
			break
		}
		peak = current
	}
	return peak
}

func reportRelease(client *protocol.Client, leaseID string, peak probe.ProcessMemory, exitCode int, duration time.Duration, hadDiagnostics bool, stderrDigest string) {
	resp, err := client.Release(protocol.ReleaseRequest{
		LeaseID:              leaseID,
		PeakWorkingSetBytes:  peak.PeakWorkingSetBytes,
		PeakCommitBytes:      peak.PeakPrivateBytes,
		ExitCode:             exitCode,
		DurationMs:           duration.Milliseconds(),
		StderrHadDiagnostics: hadDiagnostics,
		StderrDigest:         stderrDigest,
	})
	if err != nil {
		slog.Debug("release failed", "leaseId", leaseID, "error", err)
		return
	}

	if !resp.Acknowledged {
		return
	}
	if resp.Classification == "LikelyOOM" || resp.Classification == "LikelyPagingDeath" {
		fmt.Fprintln(os.Stderr, resp.Message)
	}
}

// governorBinaryPath locates the governor daemon binary: GOV_SERVICE_PATH
// overrides, otherwise it is assumed to sit alongside the shim in the same
// installation directory.
func governorBinaryPath() string {
	if p := os.Getenv("GOV_SERVICE_PATH"); p != "" {
		return p
	}
	name := "governor"
	if runtime.GOOS == "windows" {
		name = "governor.exe"
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), name)
	}
	return name
}
