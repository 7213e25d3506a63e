package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remoteds/hostingctl/internal/auth"
	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply hosting database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		dbURL, err := auth.ResolveDatabaseURL(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if err := db.RunMigrations(dbURL); err != nil {
			return err
		}

		fmt.Println("Hosting database schema is up to date ✅")
		return nil
	},
}
