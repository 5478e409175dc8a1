package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/complexity"
	"github.com/theirongolddev/tokenwise/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Tier and role model mapping with pricing",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(_ *cobra.Command, _ []string) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	sel := eng.Selector()
	prices := eng.Prices()
	cur := currency(eng)
	now := time.Now()

	fmt.Println()
	fmt.Println(cli.RenderTitle("MODELS"))
	fmt.Println()

	rows := make([][]string, 0, len(model.Tiers)*len(model.Roles))
	for _, tier := range model.Tiers {
		for _, role := range model.Roles {
			id := sel.ModelForTier(tier, role)
			p, known := prices.Lookup(id, now)
			in, out := "?", "?"
			if known {
				in = cli.FormatCost(p.InputPerMTok, cur)
				out = cli.FormatCost(p.OutputPerMTok, cur)
			}
			rows = append(rows, []string{
				cli.RenderTier(tier),
				role,
				shortModel(id),
				cli.FormatTokens(complexity.TokenLimit(tier, role)),
				in,
				out,
			})
		}
		rows = append(rows, []string{"---"})
	}
	rows = rows[:len(rows)-1]

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Tier", "Role", "Model", "Max Out", "In/MTok", "Out/MTok"},
		Rows:    rows,
	}))
	fmt.Printf("  Downgrade target: %s\n\n", shortModel(sel.Cheapest()))
	return nil
}
