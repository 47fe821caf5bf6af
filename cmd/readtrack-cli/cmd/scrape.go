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
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape pass over the whole library and print the summary.",
	Run: func(cmd *cobra.Command, args []string) {
		g := globals.Get(cmd.Context())

		summary := g.Service.RunScrape(cmd.Context())
		if !summary.Success {
			fmt.Fprintln(os.Stderr, summary.Error)
			os.Exit(1)
		}

		t := utils.NewTable()
		t.AppendRow(table.Row{"books scraped", summary.BooksScraped})
		t.AppendRow(table.Row{"books with progress", summary.BooksWithProgress})
		if len(summary.LicenseLimitBooks) > 0 {
			t.AppendRow(table.Row{"license limited", strings.Join(summary.LicenseLimitBooks, ", ")})
		}
		t.AppendRow(table.Row{"timestamp", summary.Timestamp.Format("2006-01-02 15:04:05")})
		t.Render()
	},
}
