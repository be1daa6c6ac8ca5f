package cmd

import (
	"strings"
	"testing"

	"github.com/buildgovernor/governor/app/core/protocol"
)

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{512, "512B"},
		{2048, "2.0KiB"},
		{3 * (1 << 30), "3.0GiB"},
	}
	for _, c := range cases {
		if got := humanBytes(c.in); got != c.want {
			t.Errorf("humanBytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRenderLeaseRows_Empty(t *testing.T) {
	got := renderLeaseRows(nil)
	if !strings.Contains(got, "none yet") {
		t.Errorf("renderLeaseRows(nil) = %q, want placeholder text", got)
	}
}

func TestRenderLeaseRows_FormatsEachLease(t *testing.T) {
	leases := []protocol.StatusLease{
		{LeaseID: "abc123", Tool: "cl.exe", Tokens: 2, DurationSeconds: 4.5},
		{LeaseID: "def456", Tool: "link.exe", Tokens: 3, DurationSeconds: 1.2},
	}
	got := renderLeaseRows(leases)
	for _, want := range []string{"abc123", "cl.exe", "def456", "link.exe"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderLeaseRows missing %q: %s", want, got)
		}
	}
	if lines := strings.Split(got, "\n"); len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d: %q", len(lines), got)
	}
}
