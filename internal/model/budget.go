package model

import "time"

// CostEntry is one billed remote call. Entries are never edited once written.
type CostEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Role         string    `json:"role,omitempty"`
	Tier         Tier      `json:"tier,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	InputTokens  int64     `json:"input_tokens,omitempty"`
	OutputTokens int64     `json:"output_tokens,omitempty"`
	Amount       float64   `json:"amount"`
	Goal         string    `json:"goal,omitempty"`
}

// BudgetState is a snapshot of spend against the configured targets.
type BudgetState struct {
	MonthlyTarget float64
	DailyTarget   float64
	WarnPercent   float64
	MonthSpend    float64
	DaySpend      float64
	Entries       int
	At            time.Time
}

// MonthlyPercent returns month spend as a percentage of the monthly target.
// Zero target means no limit.
func (b BudgetState) MonthlyPercent() float64 {
	if b.MonthlyTarget <= 0 {
		return 0
	}
	return b.MonthSpend / b.MonthlyTarget * 100
}

// DailyPercent returns day spend as a percentage of the daily target.
func (b BudgetState) DailyPercent() float64 {
	if b.DailyTarget <= 0 {
		return 0
	}
	return b.DaySpend / b.DailyTarget * 100
}

// Exceeded reports whether spend reached either hard target.
func (b BudgetState) Exceeded() bool {
	if b.MonthlyTarget > 0 && b.MonthSpend >= b.MonthlyTarget {
		return true
	}
	return b.DailyTarget > 0 && b.DaySpend >= b.DailyTarget
}

// Warning reports whether spend crossed the warn threshold of either target.
func (b BudgetState) Warning() bool {
	if b.WarnPercent <= 0 {
		return false
	}
	return b.MonthlyPercent() > b.WarnPercent || b.DailyPercent() > b.WarnPercent
}

// RemainingMonthly returns the unspent monthly amount, floored at zero.
func (b BudgetState) RemainingMonthly() float64 {
	return max(0, b.MonthlyTarget-b.MonthSpend)
}

// RemainingDaily returns the unspent daily amount, floored at zero.
func (b BudgetState) RemainingDaily() float64 {
	return max(0, b.DailyTarget-b.DaySpend)
}
