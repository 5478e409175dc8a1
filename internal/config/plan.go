package config

import "strings"

// BudgetPlan is a named preset of spend targets offered by the setup wizard.
type BudgetPlan struct {
	Name          string
	MonthlyTarget float64
	DailyTarget   float64
}

// Plans lists the built-in presets, smallest first.
var Plans = []BudgetPlan{
	{Name: "hobby", MonthlyTarget: 20, DailyTarget: 2},
	{Name: "pro", MonthlyTarget: 100, DailyTarget: 5},
	{Name: "team", MonthlyTarget: 500, DailyTarget: 25},
}

// PlanByName returns the preset with the given name; unknown names fall back to "pro".
func PlanByName(name string) BudgetPlan {
	for _, p := range Plans {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return Plans[1]
}

// DetectPlan returns the preset whose monthly target matches cfg, or a
// "custom" plan carrying cfg's own targets.
func DetectPlan(cfg BudgetConfig) BudgetPlan {
	for _, p := range Plans {
		if p.MonthlyTarget == cfg.MonthlyTarget && p.DailyTarget == cfg.DailyTarget {
			return p
		}
	}
	return BudgetPlan{Name: "custom", MonthlyTarget: cfg.MonthlyTarget, DailyTarget: cfg.DailyTarget}
}
