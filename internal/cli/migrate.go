package cli

import (
	"github.com/spf13/cobra"

	"ledwatcher/internal/storage"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if migrateDown {
			return storage.MigrateDown(a.Config.Database)
		}
		return storage.Migrate(a.Config.Database, a.Logger)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll back all migrations instead of applying them")
}
