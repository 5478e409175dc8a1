package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily spend table",
	RunE:  runDaily,
}

var flagDailyDays int

func init() {
	dailyCmd.Flags().IntVarP(&flagDailyDays, "days", "n", 30, "Number of days to show")
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(cmd *cobra.Command, _ []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	rep, err := eng.ReportBudgetDays(cmd.Context(), flagDailyDays)
	if err != nil {
		return err
	}
	printWarnings(rep.Warnings)
	days := rep.Analysis.Daily
	if rep.Analysis.Calls == 0 {
		fmt.Println("\n  No calls recorded for the selected period.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("DAILY SPEND  Last %dd", flagDailyDays)))
	fmt.Println()

	target := rep.State.DailyTarget
	rows := make([][]string, 0, len(days))
	for _, d := range days {
		util := ""
		if target > 0 {
			util = cli.RenderUtilization(d.Amount/target*100, rep.State.WarnPercent, 10)
		}
		rows = append(rows, []string{
			d.Date.Format("2006-01-02"),
			cli.FormatDayOfWeek(d.Date.Weekday()),
			cli.FormatNumber(int64(d.Calls)),
			cli.FormatTokens(d.InputTokens + d.OutputTokens),
			cli.FormatCost(d.Amount, rep.Currency),
			util,
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Date", "Day", "Calls", "Tokens", "Cost", "Of Daily Target"},
		Rows:    rows,
	}))
	return nil
}
