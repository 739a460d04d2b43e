package main

import (
	"chat-memory/internal/app"
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := app.OpenStore(cmd.Context(), appConfig.Database)
		if err != nil {
			return err
		}
		defer store.Close()

		logger.Log.WithFields(logrus.Fields{"driver": appConfig.Database.Driver}).Info("Database is up to date")
		return nil
	},
}
