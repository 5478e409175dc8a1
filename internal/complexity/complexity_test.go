package complexity

import (
	"testing"

	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/model"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(config.DefaultConfig().Complexity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAssess_Tiers(t *testing.T) {
	a := newAnalyzer(t)
	cases := []struct {
		name  string
		goal  string
		bytes int64
		want  model.Tier
	}{
		{"typo fix", "fix typo in readme", 2_000, model.TierLow},
		{"single high keyword", "improve performance of the parser", 2_000, model.TierMedium},
		{"two high keywords", "refactor the security layer", 2_000, model.TierMedium},
		{"escalation pattern", "migrate the user database to postgres", 2_000, model.TierHigh},
		{"two high keywords with large context", "refactor the security layer", 400_000, model.TierHigh},
		{"long goal with high keyword", "rework the payment integration so that retries are idempotent and logged", 100_000, model.TierHigh},
		{"medium goal, huge context", "add a new api endpoint", 1_000_000, model.TierMedium},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := a.Assess(c.goal, c.bytes, nil)
			if got.Tier != c.want {
				t.Fatalf("Assess(%q, %d).Tier = %s, want %s (signals %+v)", c.goal, c.bytes, got.Tier, c.want, got.Signals)
			}
		})
	}
}

func TestAssess_WordBoundary(t *testing.T) {
	a := newAnalyzer(t)
	sig := a.Assess("prefix the suffix", 0, nil).Signals
	if sig.LowMatches != 0 {
		t.Fatalf("\"fix\" matched inside a word: %+v", sig)
	}
	sig = a.Assess("refactoring", 0, nil).Signals
	if sig.HighMatches != 1 {
		t.Fatalf("\"refactor\" did not match \"refactoring\": %+v", sig)
	}
}

func TestAssess_OverrideWins(t *testing.T) {
	a := newAnalyzer(t)
	low := model.TierLow
	got := a.Assess("migrate the whole database architecture", 10_000_000, &low)
	if got.Tier != model.TierLow || !got.Signals.Override {
		t.Fatalf("override ignored: %+v", got)
	}
	if got.Signals.PatternMatch == "" {
		t.Fatal("signals should still be computed under override")
	}
}

func TestAssess_Deterministic(t *testing.T) {
	a := newAnalyzer(t)
	b := newAnalyzer(t)
	x := a.Assess("implement security framework for the admin ui", 123_456, nil)
	y := b.Assess("implement security framework for the admin ui", 123_456, nil)
	if x != y {
		t.Fatalf("identical inputs gave %+v and %+v", x, y)
	}
	if x.GoalHash == "" {
		t.Fatal("GoalHash empty")
	}
}

func TestNew_RejectsBadPattern(t *testing.T) {
	cfg := config.DefaultConfig().Complexity
	cfg.Patterns = []string{"("}
	if _, err := New(cfg); err == nil {
		t.Fatal("New accepted invalid regexp")
	}
}

func TestTokenLimit(t *testing.T) {
	cases := []struct {
		tier model.Tier
		role string
		want int64
	}{
		{model.TierLow, model.RoleCoder, 1200},
		{model.TierMedium, model.RoleArchitect, 3840},
		{model.TierHigh, model.RoleTester, 4400},
		{model.TierHigh, model.RoleDocWriter, 3200},
		{model.TierLow, "unknown", 1200},
	}
	for _, c := range cases {
		if got := TokenLimit(c.tier, c.role); got != c.want {
			t.Errorf("TokenLimit(%s, %s) = %d, want %d", c.tier, c.role, got, c.want)
		}
	}
}

func TestEstimateCostRange(t *testing.T) {
	r := EstimateCostRange(model.TierMedium)
	if r.Min != 0.15 || r.Avg != 0.30 || r.Max != 0.50 {
		t.Fatalf("EstimateCostRange(MEDIUM) = %+v", r)
	}
}
