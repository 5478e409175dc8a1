package cmd

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/session"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and reset context cache sessions",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Session list with files, tokens, age and idle time",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheResetCmd = &cobra.Command{
	Use:   "reset <session-id|scope|all>",
	Short: "Destroy one session, every session of a scope, or all sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheReset,
}

var cacheLimit int

func init() {
	cacheStatsCmd.Flags().IntVarP(&cacheLimit, "limit", "l", 20, "Number of sessions to show")
	cacheCmd.AddCommand(cacheStatsCmd, cacheResetCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	rep, err := eng.ReportCache(cmd.Context())
	if err != nil {
		return err
	}
	printWarnings(rep.Warnings)
	st := rep.Stats

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("CONTEXT CACHE  %d/%d sessions", st.Sessions, st.MaxSessions)))
	fmt.Println()
	fmt.Print(cli.RenderKV([][2]string{
		{"State dir", st.StateDir},
		{"Cached files", cli.FormatNumber(int64(st.TotalFiles))},
		{"Unique blobs", cli.FormatNumber(int64(st.UniqueBlobs))},
		{"Files per session", fmt.Sprintf("max %d (%s on overflow)", st.MaxFiles, st.OverflowMode)},
		{"Idle TTL", cli.FormatDuration(st.TTL)},
	}))
	fmt.Println()

	sessions := st.PerSession
	if len(sessions) == 0 {
		fmt.Println("  No live sessions.")
		fmt.Println()
		return nil
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	if cacheLimit > 0 && len(sessions) > cacheLimit {
		sessions = sessions[:cacheLimit]
	}

	now := time.Now()
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		idle := cli.FormatAgo(s.LastActivity, now)
		if s.Expired {
			idle += " (expired)"
		}
		rows = append(rows, []string{
			s.ID[:min(8, len(s.ID))],
			truncate(s.Scope, 14),
			truncate(s.Goal, 28),
			cli.FormatNumber(int64(s.Files)),
			cli.FormatTokens(s.Tokens),
			cli.FormatDuration(s.Age),
			idle,
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"ID", "Scope", "Goal", "Files", "Tokens", "Age", "Last Active"},
		Rows:    rows,
	}))
	return nil
}

func runCacheReset(cmd *cobra.Command, args []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	n, err := eng.ResetCache(cmd.Context(), args[0])
	if errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("no session or scope named %q", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("  Removed %d session(s).\n", n)
	return nil
}
