package main

import (
	"chat-memory/internal/logger"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session manager and its cache janitor until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := deps.Close(); err != nil {
				logger.Log.WithError(err).Error("Error during shutdown")
			}
		}()

		// The janitor runs on SESSION_CLEANUP_INTERVAL inside the manager
		deps.Sessions.Start(ctx)
		logger.Log.Info("Session manager started")

		watchCache(ctx, deps.Cache, deps.AppConfig.Cache.HealthInterval)
		logger.Log.Info("Shutting down")
		return nil
	},
}

const defaultHealthInterval = 30 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// watchCache pings the cache primary every interval until ctx is done
func watchCache(ctx context.Context, c pinger, interval time.Duration) {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCache(ctx, c)
		}
	}
}

func checkCache(ctx context.Context, c pinger) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		logger.Log.WithError(err).Warn("Session cache primary unhealthy, serving from memory")
	}
}
