package model

import "time"

// DailySpend holds ledger totals for a single calendar day.
type DailySpend struct {
	Date         time.Time
	Calls        int
	InputTokens  int64
	OutputTokens int64
	Amount       float64
}

// SpendShare is one row of a breakdown (by model, role or tier).
type SpendShare struct {
	Key          string
	Calls        int
	InputTokens  int64
	OutputTokens int64
	Amount       float64
	SharePercent float64
}

// CostAnalysis summarizes spend over a trailing window of days.
type CostAnalysis struct {
	Days         int
	Since        time.Time
	Until        time.Time
	TotalCost    float64
	AverageDaily float64
	Calls        int
	CostPerCall  float64
	ByModel      []SpendShare
	ByRole       []SpendShare
	ByTier       []SpendShare
	Daily        []DailySpend
}
