package main

import (
	"chat-memory/internal/cache"
	"chat-memory/internal/config"
	"chat-memory/internal/session"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <conversation-id>",
	Short: "Print the cached session of a conversation without refreshing its TTL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !appConfig.Cache.RedisEnabled {
			return fmt.Errorf("inspect needs Redis; the in-process cache is not shared between processes")
		}

		redisCache := cache.NewRedisCache(appConfig.Cache)
		defer redisCache.Close()

		raw, ok, err := redisCache.Get(cmd.Context(), cache.SessionKey(args[0]))
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if !ok {
			fmt.Printf("No cached session for %s\n", args[0])
			return nil
		}

		s, err := session.Decode(raw, appConfig.Session.MaxTokens, appConfig.Session.MaxRounds)
		if err != nil {
			return fmt.Errorf("cached session is unreadable: %w", err)
		}

		fmt.Printf("Conversation: %s\n", s.ConversationID)
		fmt.Printf("User:         %d\n", s.UserID)
		fmt.Printf("Rounds:       %d / %d\n", s.Rounds(), s.MaxRounds)
		fmt.Printf("Tokens:       %d / %d\n", s.TotalTokens, s.MaxTokens)
		fmt.Printf("Last active:  %s\n", s.LastActivity.Local().Format("2006-01-02 15:04:05"))
		if s.Summary != nil {
			fmt.Printf("Summary:      %s\n", *s.Summary)
		}
		fmt.Println()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s.Messages)
	},
}
