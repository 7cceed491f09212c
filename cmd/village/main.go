package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/village-chat/internal/config"
	applog "github.com/vovakirdan/village-chat/internal/log"
)

var (
	configPath string
	logLevel   string
)

// rootCmd is the village entry point.
var rootCmd = &cobra.Command{
	Use:   "village",
	Short: "Village chat relay and terminal client",
	Long: `village runs the chat relay and talks to it from the terminal.

Available subcommands:
  serve   - Run the relay (REST history + WebSocket fan-out)
  chat    - Open a room and chat interactively
  rooms   - List or delete your rooms
  history - Print a room's message log
  token   - Mint a development bearer token`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $VILLAGE_CONFIG_DEFAULT_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")

	rootCmd.AddCommand(serveCmd, chatCmd, roomsCmd, historyCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration and builds a logger writing to stderr.
func loadConfig() (config.Config, *zerolog.Logger, error) {
	bootstrap := applog.NewWithWriter("warn", os.Stderr)
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := applog.NewWithWriter(cfg.LogLevel, os.Stderr)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}
