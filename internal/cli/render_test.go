package cli

import (
	"strings"
	"testing"

	"github.com/theirongolddev/tokenwise/internal/model"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable(Table{
		Title:   "By Model",
		Headers: []string{"Model", "Cost"},
		Rows:    [][]string{{"claude-haiku-4-5", "$0.12"}, {"---"}, {"total", "$0.12"}},
	})
	for _, want := range []string{"By Model", "claude-haiku-4-5", "$0.12", "total"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if RenderTable(Table{}) != "" {
		t.Fatal("empty table rendered output")
	}
}

func TestRenderUtilization(t *testing.T) {
	if out := RenderUtilization(150, 80, 10); !strings.Contains(out, "150.0%") {
		t.Fatalf("utilization = %q", out)
	}
	if out := RenderUtilization(0, 80, 10); !strings.Contains(out, "0.0%") {
		t.Fatalf("utilization = %q", out)
	}
}

func TestRenderWarnings(t *testing.T) {
	if RenderWarnings(nil) != "" {
		t.Fatal("nil warnings rendered output")
	}
	out := RenderWarnings([]model.Warning{{Kind: model.WarnContextRead, Message: "cannot read", Path: "a.go"}})
	if !strings.Contains(out, "cannot read") || !strings.Contains(out, "a.go") {
		t.Fatalf("warnings = %q", out)
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := []rune(RenderSparkline([]float64{0, 1, 2})); len(got) != 3 || got[2] != '█' {
		t.Fatalf("sparkline = %q", string(got))
	}
}
