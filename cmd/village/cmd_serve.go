package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/village-chat/internal/app"
	"github.com/vovakirdan/village-chat/internal/config"
)

var serveOverrides config.Config

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveOverrides.Addr, "addr", "", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveOverrides.DatabasePath, "db", "", "SQLite database path")
	serveCmd.Flags().DurationVar(&serveOverrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	serveCmd.Flags().DurationVar(&serveOverrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.UpdateFrom(serveOverrides)

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize relay")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting village relay")
	if err := application.Run(cmd.Context()); err != nil {
		logger.Error().Err(err).Msg("relay exited with error")
		return err
	}
	logger.Info().Msg("relay stopped")
	return nil
}
