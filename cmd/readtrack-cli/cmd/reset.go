package cmd

import (
	"fmt"
	"os"

	"readtrack-backend/cmd/readtrack-cli/globals"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resetDailyCmd)
	rootCmd.AddCommand(resetProgressCmd)
}

var resetDailyCmd = &cobra.Command{
	Use:   "reset-daily",
	Short: "Clear all daily aggregates, including goal-met markers.",
	Run: func(cmd *cobra.Command, args []string) {
		g := globals.Get(cmd.Context())
		if err := g.Store.ResetDailyStats(cmd.Context()); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Println("daily stats cleared")
	},
}

var resetProgressCmd = &cobra.Command{
	Use:   "reset-progress",
	Short: "Drop every progress snapshot and daily aggregate. Book records survive.",
	Run: func(cmd *cobra.Command, args []string) {
		g := globals.Get(cmd.Context())
		if err := g.Store.ResetAllProgress(cmd.Context()); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Println("progress history cleared")
	},
}
