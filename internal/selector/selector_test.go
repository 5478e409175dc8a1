package selector

import (
	"errors"
	"testing"

	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/model"
)

func newSelector(t *testing.T, mut func(*config.Config)) *Selector {
	t.Helper()
	cfg := config.DefaultConfig()
	if mut != nil {
		mut(&cfg)
	}
	return New(cfg, config.NewPriceTable(cfg.Pricing), nil)
}

func budgetAt(percent float64) model.BudgetState {
	return model.BudgetState{MonthlyTarget: 100, WarnPercent: 80, MonthSpend: percent}
}

func TestSelect_MapsTierToModel(t *testing.T) {
	s := newSelector(t, nil)
	for tier, want := range map[model.Tier]string{
		model.TierLow:    "claude-haiku-4-5",
		model.TierMedium: "claude-sonnet-4-5",
		model.TierHigh:   "claude-opus-4-5",
	} {
		sel, err := s.Select(Request{Tier: tier, EstimatedInputTokens: 10_000}, budgetAt(10))
		if err != nil {
			t.Fatalf("Select(%s): %v", tier, err)
		}
		if sel.Model != want || sel.ForcedDowngrade || sel.BudgetWarning {
			t.Fatalf("Select(%s) = %+v, want %s without warnings", tier, sel, want)
		}
		if sel.EstimatedCost <= 0 {
			t.Fatalf("EstimatedCost = %v, want > 0", sel.EstimatedCost)
		}
	}
}

func TestSelect_ForcesDowngradeAboveWarnThreshold(t *testing.T) {
	s := newSelector(t, nil)
	sel, err := s.Select(Request{Tier: model.TierHigh}, budgetAt(81))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.ForcedDowngrade || !sel.BudgetWarning {
		t.Fatalf("Select at 81%% = %+v, want forced downgrade", sel)
	}
	if sel.Model != "claude-haiku-4-5" || sel.DowngradedFrom != "claude-opus-4-5" {
		t.Fatalf("downgrade %s -> %s", sel.DowngradedFrom, sel.Model)
	}
	if w := Warnings(sel, budgetAt(81)); len(w) != 2 {
		t.Fatalf("Warnings = %v, want budget and downgrade", w)
	}
}

func TestSelect_NoDowngradeAtThreshold(t *testing.T) {
	s := newSelector(t, nil)
	sel, err := s.Select(Request{Tier: model.TierHigh}, budgetAt(80))
	if err != nil {
		t.Fatal(err)
	}
	if sel.ForcedDowngrade || sel.BudgetWarning {
		t.Fatalf("Select at exactly 80%% = %+v", sel)
	}
}

func TestSelect_WarnsWithoutAutoDowngrade(t *testing.T) {
	s := newSelector(t, func(c *config.Config) { c.Budget.AutoDowngrade = false })
	sel, _ := s.Select(Request{Tier: model.TierHigh}, budgetAt(90))
	if sel.ForcedDowngrade || !sel.BudgetWarning || sel.Model != "claude-opus-4-5" {
		t.Fatalf("Select = %+v, want warning without downgrade", sel)
	}
}

func TestSelect_BudgetExceeded(t *testing.T) {
	s := newSelector(t, nil)
	sel, err := s.Select(Request{Tier: model.TierLow}, budgetAt(100))
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	var bee *BudgetExceededError
	if !errors.As(err, &bee) || bee.Period != "monthly" || bee.Spend != 100 {
		t.Fatalf("BudgetExceededError = %+v", bee)
	}
	if sel != (model.Selection{}) {
		t.Fatalf("selection issued on exceeded budget: %+v", sel)
	}
}

func TestSelect_DailyTargetExceeded(t *testing.T) {
	s := newSelector(t, nil)
	b := model.BudgetState{MonthlyTarget: 100, DailyTarget: 5, WarnPercent: 80, MonthSpend: 10, DaySpend: 5}
	_, err := s.Select(Request{Tier: model.TierLow}, b)
	var bee *BudgetExceededError
	if !errors.As(err, &bee) || bee.Period != "daily" {
		t.Fatalf("err = %v, want daily BudgetExceededError", err)
	}
}

func TestSelect_AllowOverBudget(t *testing.T) {
	s := newSelector(t, nil)
	sel, err := s.Select(Request{Tier: model.TierMedium, AllowOverBudget: true}, budgetAt(120))
	if err != nil {
		t.Fatalf("Select with confirmation: %v", err)
	}
	if !sel.OverBudget || !sel.ForcedDowngrade {
		t.Fatalf("Select = %+v, want over-budget downgrade", sel)
	}
}

func TestSelect_OverrideVerbatim(t *testing.T) {
	s := newSelector(t, nil)
	sel, err := s.Select(Request{Tier: model.TierLow, Model: "gpt-4o-2024-08-06", EstimatedInputTokens: 1000}, budgetAt(95))
	if err != nil {
		t.Fatal(err)
	}
	if sel.Model != "gpt-4o-2024-08-06" || !sel.Override || sel.ForcedDowngrade {
		t.Fatalf("override = %+v", sel)
	}
	if !sel.BudgetWarning || sel.EstimatedCost <= 0 {
		t.Fatalf("override should still carry warning and cost: %+v", sel)
	}
}

func TestSelect_RoleModelAndTokenLimit(t *testing.T) {
	s := newSelector(t, func(c *config.Config) {
		c.Models.Roles = map[string]string{model.RoleTester: "gpt-4o-mini"}
	})
	sel, _ := s.Select(Request{Tier: model.TierHigh, Role: model.RoleTester}, budgetAt(0))
	if sel.Model != "gpt-4o-mini" {
		t.Fatalf("role model = %s", sel.Model)
	}
	if sel.MaxOutputTokens != 4400 {
		t.Fatalf("MaxOutputTokens = %d, want 4400", sel.MaxOutputTokens)
	}
	if s.Cheapest() != "gpt-4o-mini" {
		t.Fatalf("Cheapest = %s", s.Cheapest())
	}
}
