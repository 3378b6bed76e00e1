package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/card-control/config"
	"github.com/upb/card-control/repositories/postgres"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the cards, controls and transactions tables",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.StorageBackendPostgres {
		return fmt.Errorf("migrate requires the postgres storage backend, got %q", cfg.Storage.Backend)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer factory.Close()

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("schema initialized", zap.String("connection", cfg.Database.LogString()))
	return nil
}
