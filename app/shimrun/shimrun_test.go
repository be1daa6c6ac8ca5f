package shimrun

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestArgsHash_StableAndSensitiveToOrder(t *testing.T) {
	a := argsHash([]string{"/c", "foo.cpp"})
	b := argsHash([]string{"/c", "foo.cpp"})
	if a != b {
		t.Fatalf("expected identical args to hash identically: %q != %q", a, b)
	}

	c := argsHash([]string{"foo.cpp", "/c"})
	if a == c {
		t.Fatalf("expected different argument order to hash differently")
	}
}

func TestPrimarySourceFile_SkipsFlags(t *testing.T) {
	got := primarySourceFile([]string{"/c", "/O2", "foo.cpp"})
	if got != "foo.cpp" {
		t.Fatalf("expected foo.cpp, got %q", got)
	}
}

func TestPrimarySourceFile_EmptyWhenOnlyFlags(t *testing.T) {
	got := primarySourceFile([]string{"/c", "/O2"})
	if got != "" {
		t.Fatalf("expected empty source file, got %q", got)
	}
}

func TestTruncateDigest_CapsLength(t *testing.T) {
	long := strings.Repeat("x", stderrDigestCap*2)
	got := truncateDigest(long)
	if len(got) != stderrDigestCap {
		t.Fatalf("expected digest capped to %d bytes, got %d", stderrDigestCap, len(got))
	}
}

func TestTruncateDigest_LeavesShortStringUntouched(t *testing.T) {
	short := "no diagnostics"
	if got := truncateDigest(short); got != short {
		t.Fatalf("expected %q unchanged, got %q", short, got)
	}
}

func TestLocateRealTool_EnvOverrideWins(t *testing.T) {
	dir := t.TempDir()
	fakeTool := filepath.Join(dir, "realcl")
	if err := os.WriteFile(fakeTool, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOVERNOR_REAL_CL_TEST", fakeTool)

	cfg := Config{EnvOverride: "GOVERNOR_REAL_CL_TEST", RealToolNames: []string{"cl"}}
	got, err := locateRealTool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got != fakeTool {
		t.Fatalf("expected env override path %q, got %q", fakeTool, got)
	}
}

func TestLocateRealTool_ScansPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH executable bit semantics differ on windows")
	}
	dir := t.TempDir()
	toolName := "realcl"
	fakeTool := filepath.Join(dir, toolName)
	if err := os.WriteFile(fakeTool, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)

	cfg := Config{RealToolNames: []string{toolName}}
	got, err := locateRealTool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got != fakeTool {
		t.Fatalf("expected %q, got %q", fakeTool, got)
	}
}

func TestLocateRealTool_NotFoundReturnsError(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := Config{RealToolNames: []string{"does-not-exist-anywhere"}}
	if _, err := locateRealTool(cfg); err == nil {
		t.Fatal("expected an error when the real tool cannot be located")
	}
}
