package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/model"
)

var recordCmd = &cobra.Command{
	Use:   "record <model> [amount]",
	Short: "Append a billed call to the cost ledger",
	Long: "Record a call's cost. Give the amount directly, or give --input/--output tokens " +
		"and let the pricing table compute it.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runRecord,
}

var (
	flagRecordInput      int64
	flagRecordOutput     int64
	flagRecordCacheWrite int64
	flagRecordCacheRead  int64
	flagRecordRole       string
	flagRecordTier       string
	flagRecordGoal       string
	flagRecordSession    string
)

func init() {
	recordCmd.Flags().Int64Var(&flagRecordInput, "input", 0, "Input tokens")
	recordCmd.Flags().Int64Var(&flagRecordOutput, "output", 0, "Output tokens")
	recordCmd.Flags().Int64Var(&flagRecordCacheWrite, "cache-write", 0, "Cache write tokens")
	recordCmd.Flags().Int64Var(&flagRecordCacheRead, "cache-read", 0, "Cache read tokens")
	recordCmd.Flags().StringVar(&flagRecordRole, "role", "", "Pipeline role")
	recordCmd.Flags().StringVar(&flagRecordTier, "tier", "", "Complexity tier")
	recordCmd.Flags().StringVar(&flagRecordGoal, "goal", "", "Goal label")
	recordCmd.Flags().StringVar(&flagRecordSession, "session", "", "Cache session id")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	var tier model.Tier
	if flagRecordTier != "" {
		t, err := model.ParseTier(flagRecordTier)
		if err != nil {
			return err
		}
		tier = t
	}

	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	var entry model.CostEntry
	if len(args) == 2 {
		amount, perr := strconv.ParseFloat(args[1], 64)
		if perr != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], perr)
		}
		entry, err = eng.RecordEntry(cmd.Context(), model.CostEntry{
			Model:        args[0],
			Role:         flagRecordRole,
			Tier:         tier,
			SessionID:    flagRecordSession,
			Goal:         flagRecordGoal,
			InputTokens:  flagRecordInput,
			OutputTokens: flagRecordOutput,
			Amount:       amount,
		})
	} else {
		if flagRecordInput == 0 && flagRecordOutput == 0 {
			return fmt.Errorf("give an amount or --input/--output token counts")
		}
		entry, err = eng.RecordUsage(cmd.Context(), engine.Usage{
			Model:            args[0],
			Role:             flagRecordRole,
			Tier:             tier,
			SessionID:        flagRecordSession,
			Goal:             flagRecordGoal,
			InputTokens:      flagRecordInput,
			OutputTokens:     flagRecordOutput,
			CacheWriteTokens: flagRecordCacheWrite,
			CacheReadTokens:  flagRecordCacheRead,
		})
	}
	if err != nil {
		return err
	}

	st, err := eng.BudgetState(cmd.Context())
	if err != nil {
		return err
	}
	cur := currency(eng)
	fmt.Printf("  Recorded %s for %s  (month %s)\n",
		cli.FormatCost(entry.Amount, cur),
		entry.Model,
		cli.RenderUtilization(st.MonthlyPercent(), st.WarnPercent, 20))
	return nil
}
