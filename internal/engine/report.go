package engine

import (
	"context"

	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/ledger"
	"github.com/theirongolddev/tokenwise/internal/model"
)

// Budget statuses.
const (
	StatusOK       = "ok"
	StatusWarning  = "warning"
	StatusExceeded = "exceeded"
)

// BudgetReport is the budget view for reporting surfaces.
type BudgetReport struct {
	Status           string
	State            model.BudgetState
	MonthlyPercent   float64
	DailyPercent     float64
	RemainingMonthly float64
	RemainingDaily   float64
	Plan             config.BudgetPlan
	Currency         string
	Backend          string
	LedgerPath       string
	AutoDowngrade    bool
	Analysis         model.CostAnalysis
	Warnings         []model.Warning
}

// StatusOf classifies a budget state.
func StatusOf(st model.BudgetState) string {
	switch {
	case st.Exceeded():
		return StatusExceeded
	case st.Warning():
		return StatusWarning
	}
	return StatusOK
}

// ReportBudget summarizes spend against the targets and the last 7 days.
func (e *Engine) ReportBudget(ctx context.Context) (BudgetReport, error) {
	return e.ReportBudgetDays(ctx, 7)
}

// ReportBudgetDays is ReportBudget over a custom analysis window.
func (e *Engine) ReportBudgetDays(ctx context.Context, days int) (BudgetReport, error) {
	st, err := e.ledger.State(ctx)
	if err != nil {
		return BudgetReport{}, err
	}
	analysis, err := e.ledger.Analysis(ctx, days)
	if err != nil {
		return BudgetReport{}, err
	}
	return BudgetReport{
		Status:           StatusOf(st),
		State:            st,
		MonthlyPercent:   st.MonthlyPercent(),
		DailyPercent:     st.DailyPercent(),
		RemainingMonthly: st.RemainingMonthly(),
		RemainingDaily:   st.RemainingDaily(),
		Plan:             config.DetectPlan(e.cfg.Budget),
		Currency:         e.cfg.Budget.Currency,
		Backend:          e.cfg.Budget.Backend,
		LedgerPath:       e.ledger.Path(),
		AutoDowngrade:    e.cfg.Budget.AutoDowngrade,
		Analysis:         analysis,
		Warnings:         e.ledgerWarnings(nil),
	}, nil
}

// BudgetState returns the raw spend snapshot.
func (e *Engine) BudgetState(ctx context.Context) (model.BudgetState, error) {
	return e.ledger.State(ctx)
}

// CostEntries returns ledger history for the period containing now.
func (e *Engine) CostEntries(ctx context.Context, p ledger.Period) ([]model.CostEntry, error) {
	return e.ledger.Entries(ctx, p)
}

// CacheReport is the cache view for reporting surfaces.
type CacheReport struct {
	Stats    model.CacheStats
	Warnings []model.Warning
}

// ReportCache lists every persisted session.
func (e *Engine) ReportCache(ctx context.Context) (CacheReport, error) {
	st, warns, err := e.sessions.Stats(ctx)
	if err != nil {
		return CacheReport{}, err
	}
	return CacheReport{Stats: st, Warnings: warns}, nil
}
