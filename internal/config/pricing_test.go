package config

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestLookupPricingAt_UsesEffectiveDate(t *testing.T) {
	model := "test-model-windowed"
	orig, had := defaultPricingHistory[model]
	if had {
		defer func() { defaultPricingHistory[model] = orig }()
	} else {
		defer delete(defaultPricingHistory, model)
	}

	defaultPricingHistory[model] = []modelPricingVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Pricing:       ModelPricing{InputPerMTok: 1.0},
		},
		{
			EffectiveFrom: mustDate(t, "2025-07-01"),
			Pricing:       ModelPricing{InputPerMTok: 2.0},
		},
	}

	aprPrice, ok := LookupPricingAt(model, mustDate(t, "2025-04-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model")
	}
	if aprPrice.InputPerMTok != 1.0 {
		t.Fatalf("April price InputPerMTok = %.2f, want 1.0", aprPrice.InputPerMTok)
	}

	augPrice, ok := LookupPricingAt(model, mustDate(t, "2025-08-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model in later window")
	}
	if augPrice.InputPerMTok != 2.0 {
		t.Fatalf("August price InputPerMTok = %.2f, want 2.0", augPrice.InputPerMTok)
	}
}

func TestLookupPricingAt_UsesLatestWhenTimeZero(t *testing.T) {
	model := "test-model-latest"
	orig, had := defaultPricingHistory[model]
	if had {
		defer func() { defaultPricingHistory[model] = orig }()
	} else {
		defer delete(defaultPricingHistory, model)
	}

	defaultPricingHistory[model] = []modelPricingVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Pricing:       ModelPricing{InputPerMTok: 1.0},
		},
		{
			EffectiveFrom: mustDate(t, "2025-09-01"),
			Pricing:       ModelPricing{InputPerMTok: 3.0},
		},
	}

	price, ok := LookupPricingAt(model, time.Time{})
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for model with pricing history")
	}
	if price.InputPerMTok != 3.0 {
		t.Fatalf("zero-time lookup InputPerMTok = %.2f, want 3.0", price.InputPerMTok)
	}
}

func TestNormalizeModelName(t *testing.T) {
	cases := map[string]string{
		"claude-opus-4-5-20251101": "claude-opus-4-5",
		"gpt-4o-2024-08-06":        "gpt-4o",
		"gpt-4o-mini-2024-07-18":   "gpt-4o-mini",
		"openai/gpt-4.1":           "gpt-4.1",
		"Claude-Haiku-4-5":         "claude-haiku-4-5",
		"unknown-model-7":          "unknown-model-7",
	}
	for in, want := range cases {
		if got := NormalizeModelName(in); got != want {
			t.Errorf("NormalizeModelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPriceTable_OverridesApply(t *testing.T) {
	in := 9.0
	table := NewPriceTable(PricingOverrides{Overrides: map[string]ModelPricingOverride{
		"claude-sonnet-4-5": {InputPerMTok: &in},
		"local-llm":         {InputPerMTok: &in},
	}})

	p, ok := table.Lookup("claude-sonnet-4-5-20250929", time.Time{})
	if !ok {
		t.Fatal("Lookup returned !ok for overridden known model")
	}
	if p.InputPerMTok != 9.0 || p.OutputPerMTok != 15.0 {
		t.Fatalf("override merged to %+v, want input 9 and default output 15", p)
	}

	if _, ok := table.Lookup("local-llm", time.Time{}); !ok {
		t.Fatal("override-only model should be found")
	}
}

func TestPriceTable_Cost(t *testing.T) {
	var table *PriceTable
	got := table.Cost("claude-sonnet-4-5", time.Time{}, 1_000_000, 100_000, 0, 0)
	want := 3.0 + 1.5
	if got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("Cost = %.6f, want %.6f", got, want)
	}
	if c := table.Cost("no-such-model", time.Time{}, 1000, 1000, 0, 0); c != 0 {
		t.Fatalf("unknown model cost = %v, want 0", c)
	}
}

func TestPriceTable_Savings(t *testing.T) {
	in := 10.0
	table := NewPriceTable(PricingOverrides{Overrides: map[string]ModelPricingOverride{
		"claude-opus-4-5": {InputPerMTok: &in},
	}})
	if got := table.Savings("claude-sonnet-4-5", time.Time{}, 500_000); got < 1.5-1e-9 || got > 1.5+1e-9 {
		t.Fatalf("Savings(sonnet) = %.6f, want 1.5", got)
	}
	if got := table.Savings("claude-opus-4-5", time.Time{}, 100_000); got < 1.0-1e-9 || got > 1.0+1e-9 {
		t.Fatalf("Savings(overridden opus) = %.6f, want 1.0", got)
	}
	if got := table.Savings("no-such-model", time.Time{}, 1_000_000); got != 0 {
		t.Fatalf("unknown model savings = %v, want 0", got)
	}
}

func TestPriceTable_Cheapest(t *testing.T) {
	table := NewPriceTable(PricingOverrides{})
	got := table.Cheapest([]string{"claude-opus-4-5", "mystery", "claude-haiku-4-5", "claude-sonnet-4-5"}, time.Time{})
	if got != "claude-haiku-4-5" {
		t.Fatalf("Cheapest = %q, want claude-haiku-4-5", got)
	}
	if got := table.Cheapest([]string{"mystery"}, time.Time{}); got != "mystery" {
		t.Fatalf("Cheapest of unpriced = %q, want mystery", got)
	}
	if got := table.Cheapest(nil, time.Time{}); got != "" {
		t.Fatalf("Cheapest(nil) = %q, want empty", got)
	}
}
