package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "One-line budget status, suitable for prompts and scripts",
	RunE:  runStatus,
}

var flagStatusStrict bool

func init() {
	statusCmd.Flags().BoolVar(&flagStatusStrict, "strict", false, "Exit non-zero when the budget is exceeded")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	st, err := eng.BudgetState(cmd.Context())
	if err != nil {
		return err
	}
	status := engine.StatusOf(st)
	cur := currency(eng)

	line := fmt.Sprintf("%s  %s / %s  %s",
		cli.RenderStatus(status),
		cli.FormatCost(st.MonthSpend, cur),
		cli.FormatCost(st.MonthlyTarget, cur),
		cli.FormatPercent(st.MonthlyPercent()),
	)
	if st.DailyTarget > 0 {
		line += fmt.Sprintf("  today %s / %s", cli.FormatCost(st.DaySpend, cur), cli.FormatCost(st.DailyTarget, cur))
	}
	fmt.Println(line)

	if flagStatusStrict && status == engine.StatusExceeded {
		return fmt.Errorf("budget exceeded: %s of %s", cli.FormatCost(st.MonthSpend, cur), cli.FormatCost(st.MonthlyTarget, cur))
	}
	return nil
}
