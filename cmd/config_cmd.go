package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := flagConfig
	if path == "" {
		path = config.Path()
	}
	fmt.Printf("  Config file: %s\n", path)
	if config.Exists(flagConfig) {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	repo := config.ResolveRepoPath(cfg, flagRepo)
	fmt.Println("  [General]")
	fmt.Printf("    Repository:  %s\n", repo)
	fmt.Printf("    State dir:   %s\n", config.StateDir(cfg, repo))
	fmt.Printf("    Log level:   %s (%s)\n", cfg.General.LogLevel, cfg.General.LogFormat)
	fmt.Println()

	cur := cfg.Budget.Currency
	fmt.Println("  [Budget]")
	fmt.Printf("    Plan:           %s\n", config.DetectPlan(cfg.Budget).Name)
	fmt.Printf("    Monthly target: %s\n", cli.FormatCost(cfg.Budget.MonthlyTarget, cur))
	if cfg.Budget.DailyTarget > 0 {
		fmt.Printf("    Daily target:   %s\n", cli.FormatCost(cfg.Budget.DailyTarget, cur))
	} else {
		fmt.Println("    Daily target:   not set")
	}
	fmt.Printf("    Warn at:        %s\n", cli.FormatPercent(cfg.Budget.WarnPercent))
	fmt.Printf("    Auto downgrade: %v\n", cfg.Budget.AutoDowngrade)
	fmt.Printf("    Ledger backend: %s\n", cfg.Budget.Backend)
	fmt.Println()

	fmt.Println("  [Models]")
	fmt.Printf("    Low:    %s\n", cfg.Models.Low)
	fmt.Printf("    Medium: %s\n", cfg.Models.Medium)
	fmt.Printf("    High:   %s\n", cfg.Models.High)
	roles := make([]string, 0, len(cfg.Models.Roles))
	for r := range cfg.Models.Roles {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	for _, r := range roles {
		fmt.Printf("    %s: %s\n", r, cfg.Models.Roles[r])
	}
	fmt.Println()

	fmt.Println("  [Cache]")
	fmt.Printf("    Max files:    %d per session (%s on overflow)\n", cfg.Cache.MaxFiles, cfg.Cache.Overflow)
	fmt.Printf("    Max sessions: %d\n", cfg.Cache.MaxSessions)
	fmt.Printf("    Idle TTL:     %s\n", cli.FormatDuration(cfg.Cache.TTL.Duration))
	fmt.Printf("    Max file:     %s\n", cli.FormatBytes(cfg.Cache.MaxFileBytes))
	fmt.Printf("    Extensions:   %s\n", strings.Join(cfg.Cache.AllowedExt, " "))
	fmt.Println()

	fmt.Println("  [Remote]")
	for _, k := range []struct{ name, key string }{
		{"Anthropic", config.GetAnthropicAPIKey(cfg)},
		{"OpenAI", config.GetOpenAIAPIKey(cfg)},
	} {
		if k.key != "" {
			fmt.Printf("    %-10s %s\n", k.name+":", maskAPIKey(k.key))
		} else {
			fmt.Printf("    %-10s not configured\n", k.name+":")
		}
	}
	fmt.Printf("    Attempts:  %d, timeout %s\n", cfg.Remote.MaxAttempts, cfg.Remote.Timeout.Duration)
	if n := len(cfg.Pricing.Overrides); n > 0 {
		fmt.Printf("    Pricing overrides: %d model(s)\n", n)
	}
	fmt.Println()

	fmt.Println("  Run `tokenwise setup` to reconfigure.")
	return nil
}
