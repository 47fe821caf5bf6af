package cmd

import (
	"fmt"
	"os"
	"strings"

	"readtrack-backend/cmd/readtrack-cli/globals"
	"readtrack-backend/cmd/readtrack-cli/utils"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(libraryCmd)
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List tracked books with their latest progress.",
	Run: func(cmd *cobra.Command, args []string) {
		g := globals.Get(cmd.Context())

		library, err := g.Store.Library(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"Title", "Authors", "Position", "Percent", "Last Read"})
		for _, entry := range library {
			position := "-"
			percent := "-"
			lastRead := "-"
			if entry.Latest != nil {
				position = fmt.Sprintf("%d", entry.Latest.Position)
				percent = fmt.Sprintf("%.0f%%", entry.Latest.Percent)
				lastRead = entry.Latest.RecordedAt.Format("2006-01-02 15:04")
			}
			t.AppendRow(table.Row{
				entry.Book.Title,
				strings.Join(entry.Book.Authors, ", "),
				position,
				percent,
				lastRead,
			})
		}
		t.Render()
	},
}
