package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/model"
)

func TestAnalyze(t *testing.T) {
	since := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 0, 7)
	entries := []model.CostEntry{
		{Model: "claude-opus-4-5", Role: model.RoleArchitect, Tier: model.TierHigh, Amount: 3, Timestamp: since.Add(time.Hour)},
		{Model: "claude-haiku-4-5", Role: model.RoleDocWriter, Tier: model.TierLow, Amount: 1, Timestamp: since.Add(26 * time.Hour)},
		{Model: "claude-opus-4-5", Role: model.RoleCoder, Tier: model.TierHigh, Amount: 3, Timestamp: since.Add(27 * time.Hour)},
		{Model: "claude-haiku-4-5", Amount: 9, Timestamp: until}, // outside
	}

	a := Analyze(entries, since, until)
	if a.Days != 7 || a.Calls != 3 || a.TotalCost != 7 {
		t.Fatalf("Analyze = days %d calls %d total %v", a.Days, a.Calls, a.TotalCost)
	}
	if a.AverageDaily != 1 {
		t.Fatalf("AverageDaily = %v, want 1", a.AverageDaily)
	}
	if len(a.ByModel) != 2 || a.ByModel[0].Key != "claude-opus-4-5" || a.ByModel[0].Calls != 2 {
		t.Fatalf("ByModel = %+v", a.ByModel)
	}
	if got := a.ByModel[0].SharePercent; got < 85.7 || got > 85.8 {
		t.Fatalf("opus share = %v", got)
	}
	if len(a.ByRole) != 3 || len(a.ByTier) != 2 {
		t.Fatalf("ByRole = %+v ByTier = %+v", a.ByRole, a.ByTier)
	}
	if len(a.Daily) != 7 {
		t.Fatalf("Daily has %d rows, want 7", len(a.Daily))
	}
	if !a.Daily[0].Date.After(a.Daily[6].Date) {
		t.Fatal("Daily not most recent first")
	}
	if d := a.Daily[5]; d.Calls != 2 || d.Amount != 4 {
		t.Fatalf("second day = %+v", d)
	}
}

func TestBreakdown_UnknownRole(t *testing.T) {
	rows := Breakdown([]model.CostEntry{{Model: "m", Amount: 1}}, func(e model.CostEntry) string { return orUnknown(e.Role) })
	if len(rows) != 1 || rows[0].Key != "unknown" || rows[0].SharePercent != 100 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestLedgerAnalysis(t *testing.T) {
	now := base
	l := openLedger(t, t.TempDir(), config.BackendJSONL, &now)
	now = base.AddDate(0, 0, -10)
	mustRecord(t, l, 50)
	now = base
	mustRecord(t, l, 2)

	a, err := l.Analysis(context.Background(), 7)
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	if a.TotalCost != 2 || a.Calls != 1 || len(a.Daily) != 7 {
		t.Fatalf("Analysis = %+v", a)
	}
}
