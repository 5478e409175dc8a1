package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/model"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Spend against the monthly and daily targets, with a cost breakdown",
	RunE:  runBudget,
}

var flagDays int

func init() {
	budgetCmd.Flags().IntVarP(&flagDays, "days", "n", 7, "Trailing window for the cost analysis")
	rootCmd.Flags().IntVarP(&flagDays, "days", "n", 7, "Trailing window for the cost analysis")
	rootCmd.AddCommand(budgetCmd)
}

func runBudget(cmd *cobra.Command, _ []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	rep, err := eng.ReportBudgetDays(cmd.Context(), flagDays)
	if err != nil {
		return err
	}
	printWarnings(rep.Warnings)
	cur := rep.Currency
	st := rep.State

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("BUDGET  %s  %s", st.At.Format("January 2006"), cli.RenderStatus(rep.Status))))
	fmt.Println()

	fmt.Printf("  Monthly  %s\n", cli.RenderUtilization(rep.MonthlyPercent, st.WarnPercent, 30))
	if st.DailyTarget > 0 {
		fmt.Printf("  Today    %s\n", cli.RenderUtilization(rep.DailyPercent, st.WarnPercent, 30))
	}
	fmt.Println()

	pairs := [][2]string{
		{"Plan", rep.Plan.Name},
		{"Month spend", fmt.Sprintf("%s of %s", cli.FormatCost(st.MonthSpend, cur), cli.FormatCost(st.MonthlyTarget, cur))},
		{"Remaining", cli.FormatCost(rep.RemainingMonthly, cur)},
	}
	if st.DailyTarget > 0 {
		pairs = append(pairs,
			[2]string{"Today", fmt.Sprintf("%s of %s", cli.FormatCost(st.DaySpend, cur), cli.FormatCost(st.DailyTarget, cur))},
			[2]string{"Remaining today", cli.FormatCost(rep.RemainingDaily, cur)},
		)
	}
	pairs = append(pairs,
		[2]string{"Calls this month", cli.FormatNumber(int64(st.Entries))},
		[2]string{"Auto downgrade", fmt.Sprintf("%v (at %s)", rep.AutoDowngrade, cli.FormatPercent(st.WarnPercent))},
		[2]string{"Ledger", fmt.Sprintf("%s (%s)", rep.LedgerPath, rep.Backend)},
	)
	fmt.Print(cli.RenderKV(pairs))
	fmt.Println()

	a := rep.Analysis
	if a.Calls == 0 {
		fmt.Printf("  No calls recorded in the last %dd.\n\n", a.Days)
		return nil
	}

	fmt.Println(cli.RenderTitle(fmt.Sprintf("COST ANALYSIS  Last %dd", a.Days)))
	fmt.Println()
	fmt.Print(cli.RenderKV([][2]string{
		{"Total", cli.FormatCost(a.TotalCost, cur)},
		{"Average daily", cli.FormatCost(a.AverageDaily, cur)},
		{"Calls", cli.FormatNumber(int64(a.Calls))},
		{"Cost per call", cli.FormatCost(a.CostPerCall, cur)},
		{"Trend", cli.RenderSparkline(dailyAmounts(a.Daily))},
	}))
	fmt.Println()

	printShares("By Model", "Model", a.ByModel, cur, shortModel)
	printShares("By Role", "Role", a.ByRole, cur, nil)
	printShares("By Tier", "Tier", a.ByTier, cur, nil)
	return nil
}

func printShares(title, keyHeader string, shares []model.SpendShare, cur string, label func(string) string) {
	if len(shares) == 0 {
		return
	}
	rows := make([][]string, 0, len(shares)+2)
	var total float64
	var calls int
	for _, s := range shares {
		key := s.Key
		if label != nil {
			key = label(key)
		}
		rows = append(rows, []string{
			key,
			cli.FormatNumber(int64(s.Calls)),
			cli.FormatTokens(s.InputTokens),
			cli.FormatTokens(s.OutputTokens),
			cli.FormatCost(s.Amount, cur),
			fmt.Sprintf("%.1f%%", s.SharePercent),
		})
		total += s.Amount
		calls += s.Calls
	}
	rows = append(rows, []string{"---"})
	rows = append(rows, []string{"TOTAL", cli.FormatNumber(int64(calls)), "", "", cli.FormatCost(total, cur), ""})

	fmt.Print(cli.RenderTable(cli.Table{
		Title:   title,
		Headers: []string{keyHeader, "Calls", "Input", "Output", "Cost", "Share"},
		Rows:    rows,
	}))
}

// dailyAmounts returns amounts oldest first for the sparkline.
func dailyAmounts(days []model.DailySpend) []float64 {
	out := make([]float64, len(days))
	for i, d := range days {
		out[len(days)-1-i] = d.Amount
	}
	return out
}
