package cmd

import (
	"fmt"
	"os"

	"readtrack-backend/cmd/readtrack-cli/globals"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login [email] [password]",
	Short: "Sign in to the Kindle Cloud Reader, falling back to configured credentials.",
	Args:  cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		email := config.Amazon.Email
		password := config.Amazon.Password
		if len(args) >= 1 {
			email = args[0]
		}
		if len(args) >= 2 {
			password = args[1]
		}
		if email == "" || password == "" {
			fmt.Fprintln(os.Stderr, "no credentials given or configured")
			os.Exit(1)
		}

		g := globals.Get(cmd.Context())
		err := g.Service.Login(cmd.Context(), email, password)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Println("logged in")
	},
}
