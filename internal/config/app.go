package config

import (
	"chat-memory/internal/logger"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Database DatabaseConfig
	Cache    CacheConfig
	Session  SessionConfig
	LLM      LLMConfig
	Models   *ModelsConfig
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver         string // "postgres" or "sqlite"
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	SQLitePath     string
	MigrationsPath string
	MaxOpenConns   int
	MaxIdleConns   int
	// OpTimeout bounds every store operation, including waiting for a pooled connection.
	OpTimeout time.Duration
}

// CacheConfig holds the session cache backend configuration
type CacheConfig struct {
	RedisEnabled   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PoolSize       int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// HealthInterval is how often serve pings the primary backend
	HealthInterval time.Duration
}

// SessionConfig holds the short-term memory policy
type SessionConfig struct {
	TTL               time.Duration
	MaxRounds         int
	MaxTokens         int
	CleanupInterval   time.Duration
	SummaryTimeout    time.Duration
	ImportantKeywords []string
	RoleWeights       map[string]float64
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider            string // openai, openrouter, genkit, anthropic
	APIKey              string
	BaseURL             string
	Model               string
	RequestTimeout      time.Duration
	DefaultSystemPrompt string
	SummarizationPrompt string
	TitlePrompt         string
	FallbackResponses   []string
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	// Load Database config
	config.Database = DatabaseConfig{
		Driver:         getEnvOrDefault("DB_DRIVER", "postgres"),
		Host:           getEnvOrDefault("DB_HOST", "postgres"),
		Port:           getEnvOrDefault("DB_PORT", "5432"),
		User:           getEnvOrDefault("DB_USER", "postgres"),
		Password:       getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:           getEnvOrDefault("DB_NAME", "chatmemory"),
		SSLMode:        getEnvOrDefault("DB_SSLMODE", "disable"),
		SQLitePath:     getEnvOrDefault("DB_SQLITE_PATH", "data/chat-memory.db"),
		MigrationsPath: getEnvOrDefault("DB_MIGRATIONS_PATH", "migrations"),
		MaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		OpTimeout:      getEnvAsDuration("DB_OP_TIMEOUT", 5*time.Second),
	}

	// Load Cache config
	config.Cache = CacheConfig{
		RedisEnabled:   getEnvAsBool("REDIS_ENABLED", true),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		PoolSize:       getEnvAsInt("REDIS_POOL_SIZE", 50),
		DialTimeout:    getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:    getEnvAsDuration("REDIS_READ_TIMEOUT", 5*time.Second),
		WriteTimeout:   getEnvAsDuration("REDIS_WRITE_TIMEOUT", 5*time.Second),
		HealthInterval: getEnvAsDuration("REDIS_HEALTH_INTERVAL", 30*time.Second),
	}

	// Load Session config
	config.Session = SessionConfig{
		TTL:               getEnvAsDuration("SESSION_TTL", 600*time.Second),
		MaxRounds:         getEnvAsInt("SESSION_MAX_ROUNDS", 10),
		MaxTokens:         getEnvAsInt("SESSION_MAX_TOKENS", 4000),
		CleanupInterval:   getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),
		SummaryTimeout:    getEnvAsDuration("SESSION_SUMMARY_TIMEOUT", 30*time.Second),
		ImportantKeywords: getEnvAsList("SESSION_IMPORTANCE_KEYWORDS", DefaultImportantKeywords()),
		RoleWeights:       DefaultRoleWeights(),
	}

	// Load LLM config
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		logger.Log.Warn("LLM_API_KEY environment variable not set")
	}

	config.LLM = LLMConfig{
		Provider:            getEnvOrDefault("LLM_PROVIDER", "openai"),
		APIKey:              apiKey,
		BaseURL:             os.Getenv("LLM_BASE_URL"),
		Model:               os.Getenv("LLM_MODEL"),
		RequestTimeout:      getEnvAsDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
		DefaultSystemPrompt: getEnvOrDefault("LLM_SYSTEM_PROMPT", DefaultSystemPrompt),
		SummarizationPrompt: getEnvOrDefault("LLM_SUMMARIZATION_PROMPT", DefaultSummarizationPrompt),
		TitlePrompt:         getEnvOrDefault("LLM_TITLE_PROMPT", DefaultTitlePrompt),
		FallbackResponses:   getEnvAsList("LLM_FALLBACK_RESPONSES", DefaultFallbackResponses()),
	}

	// Load Models config; the file is optional
	modelsConfigPath := os.Getenv("MODELS_CONFIG_PATH")
	if modelsConfigPath != "" {
		modelsConfig, err := NewModelsConfig(modelsConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load models config: %w", err)
		}
		config.Models = modelsConfig
	} else {
		config.Models = NewStaticModelsConfig(config.LLM.Model)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects limits that would make the memory policy meaningless
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive"))
	}
	if c.Database.OpTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DB_OP_TIMEOUT must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive"))
	}
	if c.Session.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_ROUNDS must be positive"))
	}
	if c.Session.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_TOKENS must be positive"))
	}
	return errors.Join(errs...)
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid boolean value, using default")
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("10m") and bare integers as seconds ("600").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
