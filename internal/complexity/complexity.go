// Package complexity scores a goal and its resolved context into a tier.
package complexity

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/fingerprint"
	"github.com/theirongolddev/tokenwise/internal/model"
)

// Score weights and cutoffs for combining goal and context signals.
const (
	goalWeight    = 0.7
	contextWeight = 0.3
	highCutoff    = 2.5
	mediumCutoff  = 1.5

	// scoreEscalated ranks above HIGH; it only survives into the combined
	// score, never into a returned tier.
	scoreEscalated = 4
)

// Analyzer is a pure scorer. It holds compiled configuration only.
type Analyzer struct {
	high, medium, low []*regexp.Regexp
	patterns          []*regexp.Regexp
	patternSrc        []string
	goalWordsHigh     int
	goalWordsMedium   int
	ctxTokensHigh     int64
	ctxTokensMedium   int64
}

// New compiles cfg. Keywords match at the start of a word, so "refactor"
// matches "refactoring" but "fix" does not match "prefix".
func New(cfg config.ComplexityConfig) (*Analyzer, error) {
	a := &Analyzer{
		goalWordsHigh:   cfg.GoalWordsHigh,
		goalWordsMedium: cfg.GoalWordsMedium,
		ctxTokensHigh:   cfg.ContextTokensHigh,
		ctxTokensMedium: cfg.ContextTokensMedium,
	}
	var err error
	if a.high, err = keywords(cfg.High); err != nil {
		return nil, err
	}
	if a.medium, err = keywords(cfg.Medium); err != nil {
		return nil, err
	}
	if a.low, err = keywords(cfg.Low); err != nil {
		return nil, err
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("complexity pattern %q: %w", p, err)
		}
		a.patterns = append(a.patterns, re)
		a.patternSrc = append(a.patternSrc, p)
	}
	return a, nil
}

func keywords(words []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(w))
		if err != nil {
			return nil, fmt.Errorf("complexity keyword %q: %w", w, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func countMatches(res []*regexp.Regexp, s string) int {
	n := 0
	for _, re := range res {
		if re.MatchString(s) {
			n++
		}
	}
	return n
}

// Assess scores goal with contextBytes of resolved context. A non-nil
// override is returned as the tier and recorded in the signals.
func (a *Analyzer) Assess(goal string, contextBytes int64, override *model.Tier) model.Assessment {
	sig := model.Signals{
		ContextBytes:  contextBytes,
		ContextTokens: fingerprint.EstimateTokens(contextBytes),
		WordCount:     len(strings.Fields(goal)),
		HighMatches:   countMatches(a.high, goal),
		MediumMatches: countMatches(a.medium, goal),
		LowMatches:    countMatches(a.low, goal),
	}
	for i, re := range a.patterns {
		if re.MatchString(goal) {
			sig.PatternMatch = a.patternSrc[i]
			break
		}
	}

	goalScore := a.goalScore(sig)
	ctxScore := a.contextScore(sig.ContextTokens)
	sig.GoalTier = model.TierFromRank(goalScore)
	sig.ContextTier = model.TierFromRank(ctxScore)

	out := model.Assessment{GoalHash: fingerprint.Hash([]byte(goal)), Signals: sig}
	if override != nil && override.Rank() > 0 {
		out.Tier = *override
		out.Signals.Override = true
		return out
	}

	combined := float64(goalScore)*goalWeight + float64(ctxScore)*contextWeight
	switch {
	case combined >= highCutoff:
		out.Tier = model.TierHigh
	case combined >= mediumCutoff:
		out.Tier = model.TierMedium
	default:
		out.Tier = model.TierLow
	}
	return out
}

func (a *Analyzer) goalScore(sig model.Signals) int {
	if sig.PatternMatch != "" {
		return scoreEscalated
	}
	switch {
	case sig.WordCount > a.goalWordsHigh:
		if sig.HighMatches >= 2 {
			return scoreEscalated
		}
		return 3
	case sig.WordCount > a.goalWordsMedium:
		if sig.HighMatches >= 1 {
			return 3
		}
		return 2
	case sig.HighMatches >= 2:
		return 3
	case sig.HighMatches >= 1 || sig.MediumMatches >= 2:
		return 2
	}
	return 1
}

func (a *Analyzer) contextScore(tokens int64) int {
	switch {
	case tokens > a.ctxTokensHigh:
		return 3
	case tokens > a.ctxTokensMedium:
		return 2
	}
	return 1
}

var baseTokenLimits = map[model.Tier]int64{
	model.TierLow:    1200,
	model.TierMedium: 3200,
	model.TierHigh:   4000,
}

var roleMultipliers = map[string]float64{
	model.RoleArchitect: 1.2,
	model.RoleCoder:     1.0,
	model.RoleTester:    1.1,
	model.RoleDocWriter: 0.8,
}

// TokenLimit returns the output token ceiling for a tier and pipeline role.
// Unknown roles use a multiplier of 1.
func TokenLimit(tier model.Tier, role string) int64 {
	base, ok := baseTokenLimits[tier]
	if !ok {
		base = baseTokenLimits[model.TierMedium]
	}
	mult, ok := roleMultipliers[strings.ToLower(role)]
	if !ok {
		mult = 1.0
	}
	return int64(math.Round(float64(base) * mult))
}

var costRanges = map[model.Tier]model.CostRange{
	model.TierLow:    {Min: 0.05, Avg: 0.10, Max: 0.15},
	model.TierMedium: {Min: 0.15, Avg: 0.30, Max: 0.50},
	model.TierHigh:   {Min: 0.50, Avg: 1.00, Max: 1.50},
}

// EstimateCostRange returns the planning cost range for tier.
func EstimateCostRange(tier model.Tier) model.CostRange {
	return costRanges[tier]
}
