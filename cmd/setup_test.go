package cmd

import (
	"testing"

	"github.com/theirongolddev/tokenwise/internal/config"
)

func TestApplySetup_Preset(t *testing.T) {
	cfg := config.DefaultConfig()
	err := applySetup(&cfg, setupValues{plan: "team", autoDowngrade: false, backend: config.BackendSQLite, anthropicKey: " sk-ant-123 "})
	if err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if cfg.Budget.MonthlyTarget != 500 || cfg.Budget.DailyTarget != 25 {
		t.Fatalf("targets = %v/%v, want 500/25", cfg.Budget.MonthlyTarget, cfg.Budget.DailyTarget)
	}
	if cfg.Budget.AutoDowngrade {
		t.Fatal("AutoDowngrade = true, want false")
	}
	if cfg.Budget.Backend != config.BackendSQLite {
		t.Fatalf("Backend = %q", cfg.Budget.Backend)
	}
	if cfg.Remote.AnthropicAPIKey != "sk-ant-123" {
		t.Fatalf("AnthropicAPIKey = %q", cfg.Remote.AnthropicAPIKey)
	}
}

func TestApplySetup_CustomKeepsExistingKeys(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Remote.OpenAIAPIKey = "sk-existing"
	err := applySetup(&cfg, setupValues{plan: "custom", monthly: "250", daily: "0", autoDowngrade: true})
	if err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if cfg.Budget.MonthlyTarget != 250 || cfg.Budget.DailyTarget != 0 {
		t.Fatalf("targets = %v/%v, want 250/0", cfg.Budget.MonthlyTarget, cfg.Budget.DailyTarget)
	}
	if cfg.Remote.OpenAIAPIKey != "sk-existing" {
		t.Fatalf("OpenAIAPIKey = %q, want unchanged", cfg.Remote.OpenAIAPIKey)
	}
	if config.DetectPlan(cfg.Budget).Name != "custom" {
		t.Fatal("custom targets detected as a preset")
	}
}

func TestValidateAmount(t *testing.T) {
	for in, ok := range map[string]bool{"100": true, " 2.5 ": true, "0": true, "-1": false, "abc": false, "": false} {
		if err := validateAmount(in); (err == nil) != ok {
			t.Errorf("validateAmount(%q) err = %v, want ok=%v", in, err, ok)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("sk-ant-api03-abcdefghijkl"); got != "sk-ant-a...ijkl" {
		t.Fatalf("maskAPIKey = %q", got)
	}
	if got := maskAPIKey("abc"); got != "****" {
		t.Fatalf("maskAPIKey short = %q", got)
	}
}
