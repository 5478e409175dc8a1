package model

import (
	"fmt"
	"strings"
)

// Tier is a discrete complexity classification driving model choice.
type Tier string

// Complexity tiers, cheapest first.
const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Tiers lists every tier in ascending order.
var Tiers = []Tier{TierLow, TierMedium, TierHigh}

// ParseTier accepts any casing of low/medium/high.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return TierLow, nil
	case "MEDIUM", "MED":
		return TierMedium, nil
	case "HIGH":
		return TierHigh, nil
	}
	return "", fmt.Errorf("unknown tier %q (want low, medium or high)", s)
}

// Rank returns 1 for LOW, 2 for MEDIUM, 3 for HIGH, 0 otherwise.
func (t Tier) Rank() int {
	switch t {
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	}
	return 0
}

// TierFromRank is the inverse of Rank, clamped to the valid range.
func TierFromRank(r int) Tier {
	switch {
	case r <= 1:
		return TierLow
	case r == 2:
		return TierMedium
	default:
		return TierHigh
	}
}

// Signals are the inputs that contributed to a complexity assessment.
type Signals struct {
	ContextBytes  int64  `json:"context_bytes"`
	ContextTokens int64  `json:"context_tokens"`
	WordCount     int    `json:"word_count"`
	HighMatches   int    `json:"high_matches"`
	MediumMatches int    `json:"medium_matches"`
	LowMatches    int    `json:"low_matches"`
	PatternMatch  string `json:"pattern_match,omitempty"`
	GoalTier      Tier   `json:"goal_tier"`
	ContextTier   Tier   `json:"context_tier"`
	Override      bool   `json:"override"`
}

// Assessment is the result of scoring a goal and its resolved context.
type Assessment struct {
	GoalHash string  `json:"goal_hash"`
	Tier     Tier    `json:"tier"`
	Signals  Signals `json:"signals"`
}

// Selection is the transient result of choosing a model for one request.
type Selection struct {
	Model                string  `json:"model"`
	Tier                 Tier    `json:"tier"`
	ForcedDowngrade      bool    `json:"forced_downgrade"`
	DowngradedFrom       string  `json:"downgraded_from,omitempty"`
	BudgetWarning        bool    `json:"budget_warning"`
	Override             bool    `json:"override"`
	OverBudget           bool    `json:"over_budget"`
	EstimatedCost        float64 `json:"estimated_cost"`
	EstimatedInputTokens int64   `json:"estimated_input_tokens"`
	MaxOutputTokens      int64   `json:"max_output_tokens"`
}

// Pipeline stage roles.
const (
	RoleArchitect = "architect"
	RoleCoder     = "coder"
	RoleTester    = "tester"
	RoleDocWriter = "docwriter"
)

// Roles lists the pipeline stages in execution order.
var Roles = []string{RoleArchitect, RoleCoder, RoleTester, RoleDocWriter}

// CostRange is a planning estimate of per-task cost for a tier.
type CostRange struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}
