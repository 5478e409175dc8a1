package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/fingerprint"
	"github.com/theirongolddev/tokenwise/internal/selector"
)

var chooseCmd = &cobra.Command{
	Use:   "choose <goal>",
	Short: "Pick the model for a goal under the current budget",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChoose,
}

var (
	flagChooseContext   []string
	flagChooseTier      string
	flagChooseModel     string
	flagChooseRole      string
	flagChooseOverride  bool
	flagChooseModelOnly bool
)

func init() {
	chooseCmd.Flags().StringSliceVar(&flagChooseContext, "context", nil, "Context globs counted toward complexity and input size")
	chooseCmd.Flags().StringVar(&flagChooseTier, "tier", "", "Override the tier: low, medium or high")
	chooseCmd.Flags().StringVar(&flagChooseModel, "model", "", "Use this model verbatim")
	chooseCmd.Flags().StringVar(&flagChooseRole, "role", "", "Pipeline role for role-specific models and output limits")
	chooseCmd.Flags().BoolVar(&flagChooseOverride, "allow-over-budget", false, "Choose a model even when the budget is exceeded")
	chooseCmd.Flags().BoolVar(&flagChooseModelOnly, "print", false, "Print only the model id")
	rootCmd.AddCommand(chooseCmd)
}

func runChoose(cmd *cobra.Command, args []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	goal := strings.Join(args, " ")
	tier, err := parseTierFlag(flagChooseTier)
	if err != nil {
		return err
	}
	bytes, err := contextBytes(cmd, eng, goal, flagChooseContext)
	if err != nil {
		return err
	}

	sel, a, err := eng.ChooseModel(cmd.Context(), goal, bytes, engine.Choice{
		Tier:            tier,
		Model:           flagChooseModel,
		Role:            flagChooseRole,
		InputTokens:     fingerprint.EstimateTokens(bytes),
		AllowOverBudget: flagChooseOverride,
	})
	if errors.Is(err, selector.ErrBudgetExceeded) {
		return fmt.Errorf("%w; pass --allow-over-budget to proceed", err)
	}
	if err != nil {
		return err
	}

	if flagChooseModelOnly {
		fmt.Println(sel.Model)
		return nil
	}

	cur := currency(eng)
	fmt.Println()
	fmt.Println(cli.RenderTitle("MODEL  " + sel.Model))
	fmt.Println()
	pairs := [][2]string{
		{"Tier", cli.RenderTier(a.Tier)},
		{"Estimated input", cli.FormatTokens(sel.EstimatedInputTokens) + " tokens"},
		{"Max output", cli.FormatTokens(sel.MaxOutputTokens) + " tokens"},
		{"Estimated cost", cli.FormatCost(sel.EstimatedCost, cur)},
	}
	switch {
	case sel.Override:
		pairs = append(pairs, [2]string{"Source", "override"})
	case sel.ForcedDowngrade:
		pairs = append(pairs, [2]string{"Downgraded from", sel.DowngradedFrom})
	}
	if sel.OverBudget {
		pairs = append(pairs, [2]string{"Budget", cli.RenderStatus(engine.StatusExceeded)})
	} else if sel.BudgetWarning {
		pairs = append(pairs, [2]string{"Budget", cli.RenderStatus(engine.StatusWarning)})
	}
	fmt.Print(cli.RenderKV(pairs))
	fmt.Println()
	return nil
}
