package main

import (
	"EasyAPI/internal/db"
	"EasyAPI/internal/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations from MIGRATIONS_DIR",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := db.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
			logger.Error("migrate_failed", map[string]any{"error": err.Error()})
			return err
		}
		cmd.Println("migrations applied")
		return nil
	},
}
