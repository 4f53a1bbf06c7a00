// Package main provides the doctor-panel entry point: the smart-entry API
// server plus migration, topic and parsing utilities.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/config"
	"github.com/homeopms/go-smartrx/internal/observability/logging"
)

const serviceName = "doctor-panel"

func main() {
	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Prescription smart-entry service for the doctor panel",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(topicsCmd())
	rootCmd.AddCommand(parseCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration and builds the logger
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.With(zap.String("service", serviceName)), nil
}
