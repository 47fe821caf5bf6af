package cmd

import (
	"fmt"
	"os"

	"readtrack-backend/cmd/readtrack-cli/globals"
	"readtrack-backend/cmd/readtrack-cli/utils"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today's reading stats against the daily goal.",
	Run: func(cmd *cobra.Command, args []string) {
		g := globals.Get(cmd.Context())

		stats, err := g.Store.TodayStats(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		goalMet := "no"
		if stats.GoalMet {
			goalMet = "yes, at " + stats.GoalMetAt.Format("15:04")
		}

		t := utils.NewTable()
		t.AppendRow(table.Row{"date", stats.Date})
		t.AppendRow(table.Row{"pages read", stats.PagesRead})
		t.AppendRow(table.Row{"daily goal", stats.PageGoal})
		t.AppendRow(table.Row{"remaining", stats.PagesRemaining})
		t.AppendRow(table.Row{"goal met", goalMet})
		t.Render()
	},
}
