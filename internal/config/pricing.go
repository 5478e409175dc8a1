package config

import (
	"slices"
	"strings"
	"time"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheWritePerMTok float64
	CacheReadPerMTok  float64
}

type modelPricingVersion struct {
	EffectiveFrom time.Time
	Pricing       ModelPricing
}

// DefaultPricing maps model base names to their pricing.
var DefaultPricing = map[string]ModelPricing{
	"claude-opus-4-6":   {InputPerMTok: 5.00, OutputPerMTok: 25.00, CacheWritePerMTok: 6.25, CacheReadPerMTok: 0.50},
	"claude-opus-4-5":   {InputPerMTok: 5.00, OutputPerMTok: 25.00, CacheWritePerMTok: 6.25, CacheReadPerMTok: 0.50},
	"claude-opus-4-1":   {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
	"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
	"claude-sonnet-4-6": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-sonnet-4-5": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-haiku-4-5":  {InputPerMTok: 1.00, OutputPerMTok: 5.00, CacheWritePerMTok: 1.25, CacheReadPerMTok: 0.10},
	"claude-haiku-3-5":  {InputPerMTok: 0.80, OutputPerMTok: 4.00, CacheWritePerMTok: 1.00, CacheReadPerMTok: 0.08},
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00, CacheReadPerMTok: 1.25},
	"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60, CacheReadPerMTok: 0.075},
	"gpt-4.1":           {InputPerMTok: 2.00, OutputPerMTok: 8.00, CacheReadPerMTok: 0.50},
	"gpt-4.1-mini":      {InputPerMTok: 0.40, OutputPerMTok: 1.60, CacheReadPerMTok: 0.10},
}

// defaultPricingHistory stores effective-dated prices for each model.
// Entries must be sorted by EffectiveFrom ascending.
var defaultPricingHistory = makeDefaultPricingHistory(DefaultPricing)

func makeDefaultPricingHistory(base map[string]ModelPricing) map[string][]modelPricingVersion {
	history := make(map[string][]modelPricingVersion, len(base))
	for modelName, pricing := range base {
		history[modelName] = []modelPricingVersion{
			{Pricing: pricing},
		}
	}
	return history
}

func hasPricingModel(model string) bool {
	if _, ok := defaultPricingHistory[model]; ok {
		return true
	}
	_, ok := DefaultPricing[model]
	return ok
}

// NormalizeModelName strips date suffixes and provider prefixes from model identifiers.
// e.g., "claude-opus-4-5-20251101" -> "claude-opus-4-5", "openai/gpt-4o" -> "gpt-4o"
func NormalizeModelName(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	if hasPricingModel(raw) {
		return raw
	}

	// Date suffixes come as -20251101 or -2024-08-06.
	parts := strings.Split(raw, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if isAllDigits(last) && len(last) >= 8 {
			candidate := strings.Join(parts[:len(parts)-1], "-")
			if hasPricingModel(candidate) {
				return candidate
			}
		}
	}
	if len(parts) >= 4 && isAllDigits(parts[len(parts)-3]) && len(parts[len(parts)-3]) == 4 {
		candidate := strings.Join(parts[:len(parts)-3], "-")
		if hasPricingModel(candidate) {
			return candidate
		}
	}

	return raw
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// LookupPricingAt returns the pricing for a model at the given timestamp.
// If at is zero, the latest known pricing entry is used.
func LookupPricingAt(model string, at time.Time) (ModelPricing, bool) {
	normalized := NormalizeModelName(model)
	versions, ok := defaultPricingHistory[normalized]
	if !ok || len(versions) == 0 {
		p, fallback := DefaultPricing[normalized]
		return p, fallback
	}

	if at.IsZero() {
		return versions[len(versions)-1].Pricing, true
	}

	at = at.UTC()
	selected := versions[0].Pricing
	for _, v := range versions {
		if v.EffectiveFrom.IsZero() || !at.Before(v.EffectiveFrom.UTC()) {
			selected = v.Pricing
			continue
		}
		break
	}
	return selected, true
}

// PriceTable resolves pricing with user overrides applied over the defaults.
type PriceTable struct {
	overrides map[string]ModelPricingOverride
}

// NewPriceTable builds a table from the [pricing.overrides] section.
func NewPriceTable(p PricingOverrides) *PriceTable {
	ov := make(map[string]ModelPricingOverride, len(p.Overrides))
	for name, o := range p.Overrides {
		ov[NormalizeModelName(name)] = o
	}
	return &PriceTable{overrides: ov}
}

// Lookup returns pricing for model at the given time. A model known only
// through overrides is reported as found.
func (t *PriceTable) Lookup(model string, at time.Time) (ModelPricing, bool) {
	pricing, ok := LookupPricingAt(model, at)
	if t == nil {
		return pricing, ok
	}
	o, has := t.overrides[NormalizeModelName(model)]
	if !has {
		return pricing, ok
	}
	if o.InputPerMTok != nil {
		pricing.InputPerMTok = *o.InputPerMTok
	}
	if o.OutputPerMTok != nil {
		pricing.OutputPerMTok = *o.OutputPerMTok
	}
	if o.CacheWritePerMTok != nil {
		pricing.CacheWritePerMTok = *o.CacheWritePerMTok
	}
	if o.CacheReadPerMTok != nil {
		pricing.CacheReadPerMTok = *o.CacheReadPerMTok
	}
	return pricing, true
}

// Cost computes the cost in USD for a single call.
func (t *PriceTable) Cost(model string, at time.Time, inputTokens, outputTokens, cacheWrite, cacheRead int64) float64 {
	pricing, ok := t.Lookup(model, at)
	if !ok {
		return 0
	}
	cost := float64(inputTokens) * pricing.InputPerMTok / 1_000_000
	cost += float64(outputTokens) * pricing.OutputPerMTok / 1_000_000
	cost += float64(cacheWrite) * pricing.CacheWritePerMTok / 1_000_000
	cost += float64(cacheRead) * pricing.CacheReadPerMTok / 1_000_000
	return cost
}

// Savings computes what reusedTokens would have cost at the full input rate.
func (t *PriceTable) Savings(model string, at time.Time, reusedTokens int64) float64 {
	pricing, ok := t.Lookup(model, at)
	if !ok {
		return 0
	}
	return float64(reusedTokens) * pricing.InputPerMTok / 1_000_000
}

// Cheapest returns the model with the lowest combined input and output rate.
// Models without known pricing sort last; ties keep the earlier candidate.
func (t *PriceTable) Cheapest(models []string, at time.Time) string {
	if len(models) == 0 {
		return ""
	}
	type ranked struct {
		id    string
		rate  float64
		known bool
		index int
	}
	rs := make([]ranked, 0, len(models))
	for i, m := range models {
		p, ok := t.Lookup(m, at)
		rs = append(rs, ranked{id: m, rate: p.InputPerMTok + p.OutputPerMTok, known: ok, index: i})
	}
	slices.SortStableFunc(rs, func(a, b ranked) int {
		switch {
		case a.known != b.known:
			if a.known {
				return -1
			}
			return 1
		case a.rate < b.rate:
			return -1
		case a.rate > b.rate:
			return 1
		}
		return a.index - b.index
	})
	return rs[0].id
}
