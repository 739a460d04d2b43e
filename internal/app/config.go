package app

import (
	"chat-memory/internal/cache"
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"chat-memory/internal/repository/postgres"
	"chat-memory/internal/repository/sqlite"
	"chat-memory/internal/repository/sqlstore"
	"chat-memory/internal/service/chat"
	"chat-memory/internal/service/conversation"
	"chat-memory/internal/service/llm"
	"chat-memory/internal/service/summary"
	"chat-memory/internal/session"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Centralized application configuration
	AppConfig *config.AppConfig
	// Durable conversation store
	Store db.ConversationStore
	// Session cache: Redis when enabled, always backed by the in-process map
	Cache *cache.FallbackCache
	// Completion provider shared by chat, summaries and titles
	Provider llm.LLMProvider

	Summaries     *summary.SummaryService
	Sessions      *session.Manager
	Conversations *conversation.ConversationService
	Chat          *chat.ChatService
}

// OpenStore opens the durable store selected by DB_DRIVER and applies migrations
func OpenStore(ctx context.Context, dbConfig config.DatabaseConfig) (db.ConversationStore, error) {
	var (
		store *sqlstore.Store
		err   error
	)
	switch dbConfig.Driver {
	case "sqlite":
		store, err = sqlite.Open(ctx, dbConfig.SQLitePath, dbConfig.OpTimeout)
	case "postgres", "":
		store, err = postgres.Open(ctx, dbConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConfig.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenCache builds the session cache. An unreachable Redis is logged, not fatal:
// the in-process map serves until it recovers.
func OpenCache(ctx context.Context, cacheConfig config.CacheConfig) *cache.FallbackCache {
	if !cacheConfig.RedisEnabled {
		logger.Log.Info("Redis disabled, sessions are kept in process memory")
		return cache.NewFallbackCache(nil, nil)
	}

	redisCache := cache.NewRedisCache(cacheConfig)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Log.WithError(err).WithField("addr", cacheConfig.RedisAddr).Warn("Redis unreachable at startup, using in-memory fallback")
	} else {
		logger.Log.WithField("addr", cacheConfig.RedisAddr).Info("Connected to Redis")
	}
	return cache.NewFallbackCache(redisCache, nil)
}

// NewConfig wires every dependency from the application configuration
func NewConfig(ctx context.Context, appConfig *config.AppConfig) (*Config, error) {
	store, err := OpenStore(ctx, appConfig.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := llm.NewLLMProvider(ctx, &appConfig.LLM, appConfig.Models)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	return NewConfigWith(appConfig, store, OpenCache(ctx, appConfig.Cache), provider), nil
}

// NewConfigWith wires the services over already opened infrastructure
func NewConfigWith(appConfig *config.AppConfig, store db.ConversationStore, sessionCache *cache.FallbackCache, provider llm.LLMProvider) *Config {
	summaries := summary.NewSummaryService(provider, &appConfig.LLM)
	sessions := session.NewManager(store, sessionCache, summaries,
		session.OptionsFromConfig(appConfig.Session, appConfig.LLM.DefaultSystemPrompt))
	conversations := conversation.NewConversationService(store, sessions, summaries)

	logger.Log.WithFields(logrus.Fields{
		"driver":     appConfig.Database.Driver,
		"provider":   provider.Name(),
		"model":      provider.DefaultModel(),
		"ttl":        appConfig.Session.TTL.String(),
		"max_rounds": appConfig.Session.MaxRounds,
	}).Info("Application configured")

	return &Config{
		AppConfig:     appConfig,
		Store:         store,
		Cache:         sessionCache,
		Provider:      provider,
		Summaries:     summaries,
		Sessions:      sessions,
		Conversations: conversations,
		Chat:          chat.NewChatService(sessions, conversations, provider, &appConfig.LLM, appConfig.Models),
	}
}

// ModelsConfig returns the available models
func (c *Config) ModelsConfig() *config.ModelsConfig {
	return c.AppConfig.Models
}

// Close stops the session manager and releases the cache and store
func (c *Config) Close() error {
	c.Sessions.Stop()
	return errors.Join(c.Cache.Close(), c.Store.Close())
}
