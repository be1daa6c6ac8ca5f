package main

import "testing"

func TestEstimateLinkCost_PlainLink(t *testing.T) {
	cost := estimateLinkCost([]string{"foo.obj", "bar.obj", "/OUT:foo.exe"})
	if cost != 2 {
		t.Fatalf("expected baseline link cost 2, got %d", cost)
	}
}

func TestEstimateLinkCost_FullLTCGTriplesCost(t *testing.T) {
	plain := estimateLinkCost([]string{"foo.obj", "/OUT:foo.exe"})
	ltcg := estimateLinkCost([]string{"foo.obj", "/LTCG", "/OUT:foo.exe"})
	if ltcg != plain*3 {
		t.Fatalf("expected full LTCG to triple cost to %d, got %d", plain*3, ltcg)
	}
}

func TestEstimateLinkCost_IncrementalLTCGDoublesCost(t *testing.T) {
	plain := estimateLinkCost([]string{"foo.obj", "/OUT:foo.exe"})
	incremental := estimateLinkCost([]string{"foo.obj", "/LTCG:incremental", "/OUT:foo.exe"})
	if incremental != plain*2 {
		t.Fatalf("expected incremental LTCG to double cost to %d, got %d", plain*2, incremental)
	}
}

func TestEstimateLinkCost_ClampedToRange(t *testing.T) {
	cost := estimateLinkCost([]string{"/LTCG", "/DEBUG", "foo.obj"})
	if cost < 2 || cost > 12 {
		t.Fatalf("expected cost clamped to [2,12], got %d", cost)
	}
}

func TestIsLinkerDiagnostic(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"foo.obj : error LNK2019: unresolved external symbol bar", true},
		{"LINK : fatal error LNK1181: cannot open input file 'baz.lib'", true},
		{"   Creating library foo.lib and object foo.exp", false},
	}
	for _, c := range cases {
		if got := isLinkerDiagnostic(c.line); got != c.want {
			t.Errorf("isLinkerDiagnostic(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}
