// Package selector maps a complexity tier and budget state to a model.
package selector

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/complexity"
	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
)

// ErrBudgetExceeded matches every *BudgetExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetExceededError reports spend at or over a hard target.
type BudgetExceededError struct {
	Period string // "monthly" or "daily"
	Spend  float64
	Target float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded: spent %.2f of %.2f", e.Period, e.Spend, e.Target)
}

// Is makes errors.Is(err, ErrBudgetExceeded) true.
func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// Request is one model choice.
type Request struct {
	Tier                 model.Tier
	Model                string // explicit override, used verbatim
	Role                 string
	EstimatedInputTokens int64
	// AllowOverBudget is the caller's explicit confirmation to proceed past a
	// hard target.
	AllowOverBudget bool
}

// Selector chooses models. It holds configuration only.
type Selector struct {
	models        config.ModelsConfig
	prices        *config.PriceTable
	autoDowngrade bool
	now           func() time.Time
	log           *zap.Logger
}

// New returns a selector for cfg's models and budget policy.
func New(cfg config.Config, prices *config.PriceTable, log *zap.Logger) *Selector {
	return &Selector{
		models:        cfg.Models,
		prices:        prices,
		autoDowngrade: cfg.Budget.AutoDowngrade,
		now:           time.Now,
		log:           logging.OrNop(log).Named("selector"),
	}
}

// ModelForTier returns the configured model for tier, preferring a
// role-specific model when one is set.
func (s *Selector) ModelForTier(tier model.Tier, role string) string {
	if id, ok := s.models.ModelForRole(role); ok {
		return id
	}
	switch tier {
	case model.TierLow:
		return s.models.Low
	case model.TierHigh:
		return s.models.High
	}
	return s.models.Medium
}

// Cheapest returns the lowest-priced configured model.
func (s *Selector) Cheapest() string {
	return s.prices.Cheapest(s.models.Configured(), s.now())
}

// Select picks a model. At or over a hard target it fails with
// *BudgetExceededError unless req.AllowOverBudget. Above the warn threshold
// BudgetWarning is set and, with auto-downgrade on, the cheapest configured
// model replaces the tier model with ForcedDowngrade set.
func (s *Selector) Select(req Request, budget model.BudgetState) (model.Selection, error) {
	if budget.Exceeded() && !req.AllowOverBudget {
		return model.Selection{}, exceeded(budget)
	}
	tier := req.Tier
	if tier.Rank() == 0 {
		tier = model.TierMedium
	}

	sel := model.Selection{
		Tier:                 tier,
		BudgetWarning:        budget.Warning(),
		OverBudget:           budget.Exceeded(),
		EstimatedInputTokens: req.EstimatedInputTokens,
		MaxOutputTokens:      complexity.TokenLimit(tier, req.Role),
	}

	switch {
	case req.Model != "":
		sel.Model = req.Model
		sel.Override = true
	default:
		sel.Model = s.ModelForTier(tier, req.Role)
		if sel.BudgetWarning && s.autoDowngrade {
			if cheap := s.Cheapest(); cheap != "" && cheap != sel.Model {
				sel.DowngradedFrom = sel.Model
				sel.Model = cheap
				sel.ForcedDowngrade = true
			}
		}
	}

	sel.EstimatedCost = s.prices.Cost(sel.Model, s.now(), sel.EstimatedInputTokens, sel.MaxOutputTokens, 0, 0)

	if sel.ForcedDowngrade {
		s.log.Warn("budget pressure forced a downgrade",
			zap.String("from", sel.DowngradedFrom),
			zap.String("to", sel.Model),
			zap.Float64("monthly_percent", budget.MonthlyPercent()))
	}
	return sel, nil
}

func exceeded(b model.BudgetState) *BudgetExceededError {
	if b.MonthlyTarget > 0 && b.MonthSpend >= b.MonthlyTarget {
		return &BudgetExceededError{Period: "monthly", Spend: b.MonthSpend, Target: b.MonthlyTarget}
	}
	return &BudgetExceededError{Period: "daily", Spend: b.DaySpend, Target: b.DailyTarget}
}

// Warnings returns the user-facing signals for sel.
func Warnings(sel model.Selection, budget model.BudgetState) []model.Warning {
	var out []model.Warning
	if sel.OverBudget {
		out = append(out, model.Warning{
			Kind:    model.WarnBudget,
			Message: fmt.Sprintf("proceeding over budget: %.1f%% of monthly target spent", budget.MonthlyPercent()),
		})
	} else if sel.BudgetWarning {
		out = append(out, model.Warning{
			Kind:    model.WarnBudget,
			Message: fmt.Sprintf("budget warning: %.1f%% of monthly target spent", budget.MonthlyPercent()),
		})
	}
	if sel.ForcedDowngrade {
		out = append(out, model.Warning{
			Kind:    model.WarnDowngrade,
			Message: fmt.Sprintf("downgraded from %s to %s due to budget pressure", sel.DowngradedFrom, sel.Model),
		})
	}
	return out
}
