package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/pipeline"
	"github.com/theirongolddev/tokenwise/internal/remote"
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run the architect, coder, tester and doc-writer stages against the model API",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

var (
	flagRunContext  []string
	flagRunScope    string
	flagRunTier     string
	flagRunModel    string
	flagRunStages   []string
	flagRunOverride bool
	flagRunOutput   string
)

func init() {
	runCmd.Flags().StringSliceVar(&flagRunContext, "context", nil, "Context globs sent with each stage")
	runCmd.Flags().StringVarP(&flagRunScope, "scope", "s", "", "Cache scope (default \"default\")")
	runCmd.Flags().StringVar(&flagRunTier, "tier", "", "Override the tier: low, medium or high")
	runCmd.Flags().StringVar(&flagRunModel, "model", "", "Use this model for every stage")
	runCmd.Flags().StringSliceVar(&flagRunStages, "stages", nil, "Stages to run, in order (default "+strings.Join(model.Roles, ",")+")")
	runCmd.Flags().BoolVar(&flagRunOverride, "allow-over-budget", false, "Keep running when the budget is exceeded")
	runCmd.Flags().StringVarP(&flagRunOutput, "output", "o", "", "Write the final stage output to this file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	tier, err := parseTierFlag(flagRunTier)
	if err != nil {
		return err
	}
	for _, s := range flagRunStages {
		if !slices.Contains(model.Roles, s) {
			return fmt.Errorf("unknown stage %q (want one of %s)", s, strings.Join(model.Roles, ", "))
		}
	}

	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	router := remote.FromConfig(eng.Config())
	if router.Len() == 0 {
		return errors.New("no model provider configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cur := currency(eng)
	runner := &pipeline.Runner{
		Engine:      eng,
		Caller:      router,
		MaxAttempts: eng.Config().Remote.MaxAttempts,
		Logger:      log,
		OnStage: func(role string, sel model.Selection) {
			note := ""
			if sel.ForcedDowngrade {
				note = " (downgraded from " + shortModel(sel.DowngradedFrom) + ")"
			}
			progress("  %-10s %s%s  est. %s\n", role, shortModel(sel.Model), note, cli.FormatCost(sel.EstimatedCost, cur))
		},
	}

	goal := strings.Join(args, " ")
	res, runErr := runner.Run(ctx, pipeline.Task{
		Goal:            goal,
		Scope:           flagRunScope,
		Globs:           flagRunContext,
		Tier:            tier,
		Model:           flagRunModel,
		AllowOverBudget: flagRunOverride,
		Stages:          flagRunStages,
	})
	printWarnings(res.Warnings)
	printRunResult(res, cur)

	if runErr != nil {
		if pipeline.Halted(runErr) {
			return fmt.Errorf("pipeline halted: %w", runErr)
		}
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("pipeline canceled after %d stage(s): %w", len(res.Stages), runErr)
		}
		return runErr
	}

	if flagRunOutput != "" && len(res.Stages) > 0 {
		last := res.Stages[len(res.Stages)-1].Output
		if err := os.WriteFile(flagRunOutput, []byte(last), 0o600); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		progress("  Wrote %s\n", flagRunOutput)
	} else if len(res.Stages) > 0 {
		fmt.Println(res.Stages[len(res.Stages)-1].Output)
	}
	return nil
}

func printRunResult(res pipeline.Result, cur string) {
	if flagQuiet || len(res.Stages) == 0 {
		return
	}
	rows := make([][]string, 0, len(res.Stages)+2)
	for _, s := range res.Stages {
		rows = append(rows, []string{
			s.Role,
			shortModel(s.Selection.Model),
			cli.FormatNumber(int64(s.Calls)),
			fmt.Sprintf("%d/%d", s.Reuse.FilesReused, s.Reuse.FilesTotal),
			cli.FormatDuration(s.Duration),
			cli.FormatCost(s.Cost, cur),
			cli.FormatCost(s.Saved, cur),
		})
	}
	rows = append(rows, []string{"---"})
	rows = append(rows, []string{"TOTAL", "", "", "", "", cli.FormatCost(res.TotalCost, cur), cli.FormatCost(res.TotalSaved, cur)})

	out := os.Stdout
	if flagRunOutput == "" {
		out = os.Stderr
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.RenderTitle("RUN  "+cli.RenderTier(res.Assessment.Tier)))
	fmt.Fprintln(out)
	fmt.Fprint(out, cli.RenderTable(cli.Table{
		Headers: []string{"Stage", "Model", "Calls", "Cached", "Time", "Cost", "Saved"},
		Rows:    rows,
	}))
}
