package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/source"
)

var contextCmd = &cobra.Command{
	Use:   "context <glob>...",
	Short: "Resolve context files and show what would be transmitted",
	Long: "Expand the given files, directories and globs, compare them with the scope's cache session " +
		"and report which files are new, changed or already sent. --commit records them as sent.",
	Args: cobra.MinimumNArgs(1),
	RunE: runContext,
}

var (
	flagContextGoal   string
	flagContextScope  string
	flagContextCommit bool
	flagContextEmit   bool
)

func init() {
	contextCmd.Flags().StringVarP(&flagContextGoal, "goal", "g", "", "Goal label stored on a new session")
	contextCmd.Flags().StringVarP(&flagContextScope, "scope", "s", engine.DefaultScope, "Cache scope")
	contextCmd.Flags().BoolVar(&flagContextCommit, "commit", false, "Record the resolved files as sent")
	contextCmd.Flags().BoolVar(&flagContextEmit, "emit", false, "Write the payload as JSON to stdout instead of a report")
	rootCmd.AddCommand(contextCmd)
}

type emittedFile struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

type emittedPayload struct {
	SessionID string        `json:"session_id,omitempty"`
	Payload   []emittedFile `json:"payload"`
	Cached    []string      `json:"cached"`
}

func runContext(cmd *cobra.Command, args []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	progress("  Resolving context...\n")
	res, err := eng.ResolveContext(cmd.Context(), engine.Request{
		Goal:  flagContextGoal,
		Scope: flagContextScope,
		Globs: args,
	})
	if err != nil {
		return err
	}
	printWarnings(res.Warnings)

	if flagContextCommit {
		cr, err := eng.CommitContext(cmd.Context(), res)
		if err != nil {
			return fmt.Errorf("committing context: %w", err)
		}
		printWarnings(cr.Warnings())
	}

	if flagContextEmit {
		return emitPayload(res)
	}

	st := res.Stats
	fmt.Println()
	title := "CONTEXT"
	if res.Session != nil {
		title += "  session " + res.Session.ID[:min(8, len(res.Session.ID))]
	} else {
		title += "  uncached"
	}
	fmt.Println(cli.RenderTitle(title))
	fmt.Println()

	fmt.Print(cli.RenderKV([][2]string{
		{"Files resolved", cli.FormatNumber(int64(st.FilesTotal))},
		{"Transmitted", fmt.Sprintf("%d (%s)", st.FilesTransmitted, cli.FormatBytes(res.PayloadBytes))},
		{"Already sent", fmt.Sprintf("%d (%s tokens, %s saved at %s)", st.FilesReused, cli.FormatTokens(res.TokensSaved),
			cli.FormatCost(res.CostSaved, currency(eng)), shortModel(res.SavingsModel))},
		{"Excluded", cli.FormatNumber(int64(st.FilesExcluded))},
		{"Reuse", cli.RenderProgressBar(st.FilesReused, st.FilesTotal, 20) + " " + cli.FormatPercent(st.ReusePercent)},
	}))
	fmt.Println()

	rows := contextRows(res)
	if len(rows) > 0 {
		fmt.Print(cli.RenderTable(cli.Table{
			Headers: []string{"State", "Path", "Size", "Tokens", "Note"},
			Rows:    rows,
		}))
	}
	if !flagContextCommit && len(res.Payload) > 0 && res.Session != nil {
		fmt.Println("  Run again with --commit once these files are sent.")
		fmt.Println()
	}
	return nil
}

// contextRows lists each resolved file once. Without a session every file
// is sent, so new files are labeled "send".
func contextRows(res engine.Resolution) [][]string {
	newState := "new"
	if res.Uncached {
		newState = "send"
	}
	rows := make([][]string, 0, len(res.Files))
	for _, f := range res.Plan.New {
		alias := res.Plan.Aliases[f.Path]
		state := newState
		if alias != "" {
			state = "alias"
		}
		rows = append(rows, fileRow(state, f, alias))
	}
	for _, f := range res.Plan.Changed {
		rows = append(rows, fileRow("changed", f, ""))
	}
	for _, f := range res.Plan.Unchanged {
		rows = append(rows, fileRow("cached", f, ""))
	}
	return rows
}

func fileRow(state string, f source.File, alias string) []string {
	note := ""
	switch {
	case alias != "":
		note = "same content as " + alias
	case f.Truncated:
		note = "truncated"
	}
	return []string{
		state,
		truncate(f.Path, 48),
		cli.FormatBytes(f.Fingerprint.Size),
		cli.FormatTokens(f.Fingerprint.Tokens),
		note,
	}
}

func emitPayload(res engine.Resolution) error {
	out := emittedPayload{
		Payload: make([]emittedFile, 0, len(res.Payload)),
		Cached:  make([]string, 0, len(res.Cached)),
	}
	if res.Session != nil {
		out.SessionID = res.Session.ID
	}
	for _, f := range res.Payload {
		out.Payload = append(out.Payload, emittedFile{Path: f.Path, Content: string(f.Content), Truncated: f.Truncated})
	}
	for _, f := range res.Cached {
		out.Cached = append(out.Cached, f.Path)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
