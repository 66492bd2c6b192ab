package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adminhub/internal/db"
)

var migrateDown bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the latest migration instead of applying pending ones")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the portal account migrations",
	Long: `Apply the PostgreSQL migrations for portal users, groups and
permissions.

Examples:
  # Apply pending migrations
  adminhub migrate

  # Roll back the latest migration
  adminhub migrate --down`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := db.Migrate(cfg.Postgres.URL, migrateDown); err != nil {
			return err
		}
		logger.Info("Migrations complete", zap.Bool("down", migrateDown))
		return nil
	},
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create the MongoDB indexes the portal queries use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		store, err := dialMongo(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.EnsureIndexes(cmd.Context())
	},
}
