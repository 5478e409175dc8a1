package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupValues holds the wizard answers before they are applied to a config.
type setupValues struct {
	plan          string
	monthly       string
	daily         string
	autoDowngrade bool
	backend       string
	anthropicKey  string
	openAIKey     string
}

func runSetup(_ *cobra.Command, _ []string) error {
	// Load existing config or defaults
	cfg, _ := loadConfig()
	current := config.DetectPlan(cfg.Budget)

	vals := setupValues{
		plan:          current.Name,
		monthly:       strconv.FormatFloat(cfg.Budget.MonthlyTarget, 'f', -1, 64),
		daily:         strconv.FormatFloat(cfg.Budget.DailyTarget, 'f', -1, 64),
		autoDowngrade: cfg.Budget.AutoDowngrade,
		backend:       cfg.Budget.Backend,
	}

	if err := newSetupForm(cfg, &vals).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup canceled, nothing saved.")
			return nil
		}
		return err
	}
	if vals.plan == "custom" {
		if err := newCustomTargetsForm(&vals).Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("  Setup canceled, nothing saved.")
				return nil
			}
			return err
		}
	}

	if err := applySetup(&cfg, vals); err != nil {
		return err
	}
	if err := config.Save(flagConfig, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	path := flagConfig
	if path == "" {
		path = config.Path()
	}
	cur := cfg.Budget.Currency
	fmt.Println()
	fmt.Printf("  Saved to %s\n", path)
	fmt.Printf("  Budget: %s a month", cli.FormatCost(cfg.Budget.MonthlyTarget, cur))
	if cfg.Budget.DailyTarget > 0 {
		fmt.Printf(", %s a day", cli.FormatCost(cfg.Budget.DailyTarget, cur))
	}
	fmt.Println()
	fmt.Println("  Run `tokenwise setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func newSetupForm(cfg config.Config, vals *setupValues) *huh.Form {
	planOpts := make([]huh.Option[string], 0, len(config.Plans)+1)
	for _, p := range config.Plans {
		label := fmt.Sprintf("%s (%s/month, %s/day)", p.Name,
			cli.FormatCost(p.MonthlyTarget, cfg.Budget.Currency), cli.FormatCost(p.DailyTarget, cfg.Budget.Currency))
		planOpts = append(planOpts, huh.NewOption(label, p.Name))
	}
	planOpts = append(planOpts, huh.NewOption("custom", "custom"))

	keyHint := func(existing string) string {
		if existing == "" {
			return "Leave empty to skip. The environment variable wins when set."
		}
		return "Current: " + maskAPIKey(existing) + ". Leave empty to keep it."
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Budget plan").
				Description("Spend targets used for warnings and automatic downgrades.").
				Options(planOpts...).
				Value(&vals.plan),
			huh.NewConfirm().
				Title("Downgrade to the cheapest model past the warning threshold?").
				Value(&vals.autoDowngrade),
			huh.NewSelect[string]().
				Title("Ledger backend").
				Options(
					huh.NewOption("JSONL file", config.BackendJSONL),
					huh.NewOption("SQLite database", config.BackendSQLite),
				).
				Value(&vals.backend),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Anthropic API key").
				Description(keyHint(cfg.Remote.AnthropicAPIKey)).
				EchoMode(huh.EchoModePassword).
				Value(&vals.anthropicKey),
			huh.NewInput().
				Title("OpenAI API key").
				Description(keyHint(cfg.Remote.OpenAIAPIKey)).
				EchoMode(huh.EchoModePassword).
				Value(&vals.openAIKey),
		),
	)
}

func newCustomTargetsForm(vals *setupValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Monthly target").
				Validate(validateAmount).
				Value(&vals.monthly),
			huh.NewInput().
				Title("Daily target (0 disables)").
				Validate(validateAmount).
				Value(&vals.daily),
		),
	)
}

func validateAmount(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return errors.New("enter a non-negative number")
	}
	return nil
}

func applySetup(cfg *config.Config, vals setupValues) error {
	if vals.plan == "custom" {
		monthly, err := strconv.ParseFloat(strings.TrimSpace(vals.monthly), 64)
		if err != nil {
			return fmt.Errorf("monthly target: %w", err)
		}
		daily, err := strconv.ParseFloat(strings.TrimSpace(vals.daily), 64)
		if err != nil {
			return fmt.Errorf("daily target: %w", err)
		}
		cfg.Budget.MonthlyTarget = monthly
		cfg.Budget.DailyTarget = daily
	} else {
		p := config.PlanByName(vals.plan)
		cfg.Budget.MonthlyTarget = p.MonthlyTarget
		cfg.Budget.DailyTarget = p.DailyTarget
	}
	cfg.Budget.AutoDowngrade = vals.autoDowngrade
	if vals.backend != "" {
		cfg.Budget.Backend = vals.backend
	}
	if key := strings.TrimSpace(vals.anthropicKey); key != "" {
		cfg.Remote.AnthropicAPIKey = key
	}
	if key := strings.TrimSpace(vals.openAIKey); key != "" {
		cfg.Remote.OpenAIAPIKey = key
	}
	return cfg.Validate()
}

func maskAPIKey(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
