package cmd

import (
	"context"
	"fmt"
	"os"

	"readtrack-backend/cmd/readtrack-cli/globals"
	"readtrack-backend/lib/browser"
	"readtrack-backend/lib/browser/chrome"
	"readtrack-backend/lib/configutil"
	configsqlite "readtrack-backend/lib/configutil/sqlite"
	"readtrack-backend/lib/progressstore"
	"readtrack-backend/lib/progressstore/db"
	"readtrack-backend/lib/scrapers/kindle/core"
	"readtrack-backend/lib/telemetry"
	"readtrack-backend/services/kindle"

	"github.com/spf13/cobra"
)

type BrowserConfig struct {
	ProfilePath string `json:"profile_path"`
	Headless    bool   `json:"headless"`
}

type AmazonConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Config struct {
	Database configsqlite.Struct `json:"database"`
	Browser  BrowserConfig       `json:"browser"`
	Amazon   AmazonConfig        `json:"amazon"`
}

var verbose bool
var config Config

var rootCmd = &cobra.Command{
	Use:   "readtrack-cli",
	Short: "readtrack-cli drives the Kindle reading tracker from the terminal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		var err error
		config, err = configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			return fmt.Errorf("read config.json5: %w", err)
		}

		database, err := config.Database.OpenDB()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		_, err = database.Exec(db.Schema)
		if err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		store := progressstore.NewStore(database)

		manager := browser.NewManager(chrome.NewFactory(chrome.Options{
			ProfileDir: config.Browser.ProfilePath,
			Headless:   config.Browser.Headless,
		}))

		service := kindle.NewService(manager, store, core.Credentials{
			Email:    config.Amazon.Email,
			Password: config.Amazon.Password,
		})

		cmd.SetContext(globals.Set(cmd.Context(), &globals.Value{
			Service: service,
			Store:   store,
			Manager: manager,
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		globals.Get(cmd.Context()).Manager.Shutdown(context.Background())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
