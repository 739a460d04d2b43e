package main

import (
	"chat-memory/internal/app"
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "chat-memory",
	Short: "Short-term conversational memory for a chat backend",
	Long: `chat-memory keeps a bounded window of recent messages per conversation in Redis,
appends every message to a durable store and rolls long conversations into a
summary so they can continue without unbounded context growth.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("log-level") || cmd.Flags().Changed("log-format") {
			logger.Configure(logLevel, logFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json or text")
}

// buildApp loads configuration from the environment and wires every dependency
func buildApp(ctx context.Context) (*app.Config, error) {
	appConfig, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.NewConfig(ctx, appConfig)
}
