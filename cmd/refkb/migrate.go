package main

import (
	"github.com/spf13/cobra"

	"refkb/internal/platform/database"
	"refkb/internal/storage/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := sqlstore.New(db).Migrate(ctx); err != nil {
			return err
		}
		log.Info("schema applied", "database", db.Dialect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
