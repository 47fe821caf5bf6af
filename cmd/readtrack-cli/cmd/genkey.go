package cmd

import (
	"fmt"
	"os"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(genkeyCmd)
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a random API key for the server config.",
	// no database or browser needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	PersistentPostRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		key, err := random.String(32)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Println(key)
	},
}
