package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/card-control/config"
	"github.com/upb/card-control/internal/observability"
	"go.uber.org/zap"
)

var (
	logLevel        string
	logFormat       string
	definitionsPath string
)

var rootCmd = &cobra.Command{
	Use:   "card-control",
	Short: "Card control policy engine and transaction authorizer",
	Long: `card-control stores per-card spending controls and authorizes card
transactions against them before debiting the card balance.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (json, text)")
	rootCmd.PersistentFlags().StringVar(&definitionsPath, "definitions", "", "control definitions file (yaml or json)")
}

// Execute runs the command tree
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the environment and applies flag overrides
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Observability.LogFormat = logFormat
	}
	if definitionsPath != "" {
		cfg.Controls.DefinitionsPath = definitionsPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}
