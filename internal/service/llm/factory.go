package llm

import (
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"context"
	"fmt"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderGenkit     ProviderType = "genkit"
	ProviderAnthropic  ProviderType = "anthropic"
)

// ParseProviderType parses a string into a ProviderType
func ParseProviderType(s string) (ProviderType, error) {
	switch s {
	case "openai", "":
		return ProviderOpenAI, nil
	case "openrouter":
		return ProviderOpenRouter, nil
	case "genkit":
		return ProviderGenkit, nil
	case "anthropic":
		return ProviderAnthropic, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// NewLLMProvider creates the provider named by llmConfig.Provider
func NewLLMProvider(ctx context.Context, llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig) (LLMProvider, error) {
	providerType, err := ParseProviderType(llmConfig.Provider)
	if err != nil {
		return nil, err
	}

	logger.Log.WithField("provider", providerType).Info("Creating LLM provider")

	switch providerType {
	case ProviderOpenRouter:
		if llmConfig.APIKey == "" {
			return nil, fmt.Errorf("openrouter: %w", ErrNotConfigured)
		}
		return NewOpenRouterProvider(llmConfig, modelsConfig), nil
	case ProviderGenkit:
		return NewGenkitProvider(ctx, llmConfig, modelsConfig)
	case ProviderAnthropic:
		return NewAnthropicProvider(llmConfig, modelsConfig)
	default:
		return NewOpenAIProvider(llmConfig, modelsConfig)
	}
}
