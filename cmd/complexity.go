package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/model"
)

var complexityCmd = &cobra.Command{
	Use:   "complexity <goal>",
	Short: "Classify a goal into a complexity tier with an estimated cost range",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runComplexity,
}

var (
	flagComplexityContext []string
	flagComplexityTier    string
)

func init() {
	complexityCmd.Flags().StringSliceVar(&flagComplexityContext, "context", nil, "Context globs counted toward the context signal")
	complexityCmd.Flags().StringVar(&flagComplexityTier, "tier", "", "Override the tier: low, medium or high")
	rootCmd.AddCommand(complexityCmd)
}

func runComplexity(cmd *cobra.Command, args []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	goal := strings.Join(args, " ")
	override, err := parseTierFlag(flagComplexityTier)
	if err != nil {
		return err
	}
	bytes, err := contextBytes(cmd, eng, goal, flagComplexityContext)
	if err != nil {
		return err
	}

	a, cr := eng.Assess(goal, bytes, override)
	cur := currency(eng)
	sig := a.Signals

	fmt.Println()
	fmt.Println(cli.RenderTitle("COMPLEXITY  " + cli.RenderTier(a.Tier)))
	fmt.Println()
	pairs := [][2]string{
		{"Goal tier", string(sig.GoalTier)},
		{"Context tier", fmt.Sprintf("%s (%s tokens)", sig.ContextTier, cli.FormatTokens(sig.ContextTokens))},
		{"Words", cli.FormatNumber(int64(sig.WordCount))},
		{"Indicators", fmt.Sprintf("high %d, medium %d, low %d", sig.HighMatches, sig.MediumMatches, sig.LowMatches)},
	}
	if sig.PatternMatch != "" {
		pairs = append(pairs, [2]string{"Pattern", sig.PatternMatch})
	}
	if sig.Override {
		pairs = append(pairs, [2]string{"Override", "yes"})
	}
	pairs = append(pairs, [2]string{"Estimated cost", fmt.Sprintf("%s to %s (avg %s)",
		cli.FormatCost(cr.Min, cur), cli.FormatCost(cr.Max, cur), cli.FormatCost(cr.Avg, cur))})
	fmt.Print(cli.RenderKV(pairs))
	fmt.Println()
	return nil
}

func parseTierFlag(s string) (*model.Tier, error) {
	if s == "" {
		return nil, nil
	}
	t, err := model.ParseTier(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// contextBytes resolves globs without touching the cache and returns the
// total resolved size. No globs means no context.
func contextBytes(cmd *cobra.Command, eng *engine.Engine, goal string, globs []string) (int64, error) {
	if len(globs) == 0 {
		return 0, nil
	}
	res, err := eng.ResolveContext(cmd.Context(), engine.Request{Goal: goal, Globs: globs, NoCache: true})
	if err != nil {
		return 0, err
	}
	printWarnings(res.Warnings)
	return res.ContextBytes, nil
}
