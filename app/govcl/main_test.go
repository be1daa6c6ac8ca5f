package main

import "testing"

func TestEstimateCompileCost_PlainTranslationUnit(t *testing.T) {
	cost := estimateCompileCost([]string{"/c", "foo.cpp"})
	if cost != 1 {
		t.Fatalf("expected baseline cost 1, got %d", cost)
	}
}

func TestEstimateCompileCost_WholeProgramOptimizationAddsCost(t *testing.T) {
	plain := estimateCompileCost([]string{"/c", "foo.cpp"})
	gl := estimateCompileCost([]string{"/c", "/GL", "foo.cpp"})
	if gl <= plain {
		t.Fatalf("expected /GL to raise cost above %d, got %d", plain, gl)
	}
}

func TestEstimateCompileCost_TemplateHeavyPathAddsCost(t *testing.T) {
	plain := estimateCompileCost([]string{"/c", "foo.cpp"})
	heavy := estimateCompileCost([]string{"/c", `third_party\boost\container.cpp`})
	if heavy <= plain {
		t.Fatalf("expected boost path to raise cost above %d, got %d", plain, heavy)
	}
}

func TestEstimateCompileCost_ClampedToRange(t *testing.T) {
	cost := estimateCompileCost([]string{"/GL", "/bigobj", `boost\everything.cpp`})
	if cost < 1 || cost > 8 {
		t.Fatalf("expected cost clamped to [1,8], got %d", cost)
	}
}

func TestIsCompilerDiagnostic(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"foo.cpp(12): error C2065: undeclared identifier", true},
		{"foo.cpp(12): warning C4101: unreferenced local variable", true},
		{"   1 File(s) copied", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isCompilerDiagnostic(c.line); got != c.want {
			t.Errorf("isCompilerDiagnostic(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}
