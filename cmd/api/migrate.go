package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"campus/api/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPool())
			if err != nil {
				return err
			}
			defer db.Close()

			if reset {
				logger.Warn("resetting all migrations")
				if err := store.ResetMigrations(ctx, db); err != nil {
					return err
				}
			}
			if err := store.ApplyMigrations(ctx, db); err != nil {
				return err
			}
			logger.Info("migrations applied", zap.Bool("reset", reset))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "roll every migration back before applying")
	return cmd
}
