package llm

import (
	"chat-memory/internal/config"
	"context"
	"errors"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		input   string
		want    ProviderType
		wantErr bool
	}{
		{input: "", want: ProviderOpenAI},
		{input: "openai", want: ProviderOpenAI},
		{input: "openrouter", want: ProviderOpenRouter},
		{input: "genkit", want: ProviderGenkit},
		{input: "anthropic", want: ProviderAnthropic},
		{input: "mistral", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProviderType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProviderType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProviderType(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLLMProvider(t *testing.T) {
	models := config.NewStaticModelsConfig("test-model")

	tests := []struct {
		name     string
		provider string
		apiKey   string
		wantName string
		wantErr  error
	}{
		{name: "openai", provider: "openai", apiKey: "k", wantName: "openai"},
		{name: "openrouter", provider: "openrouter", apiKey: "k", wantName: "openrouter"},
		{name: "anthropic", provider: "anthropic", apiKey: "k", wantName: "anthropic"},
		{name: "missing key", provider: "openai", wantErr: ErrNotConfigured},
		{name: "openrouter missing key", provider: "openrouter", wantErr: ErrNotConfigured},
		{name: "genkit missing key", provider: "genkit", wantErr: ErrNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.LLMConfig{Provider: tt.provider, APIKey: tt.apiKey}
			p, err := NewLLMProvider(context.Background(), cfg, models)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewLLMProvider() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLLMProvider() error = %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %s, want %s", p.Name(), tt.wantName)
			}
			if p.DefaultModel() != "test-model" {
				t.Errorf("DefaultModel() = %s, want test-model", p.DefaultModel())
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "a", want: 1},
		{text: "abcdefg", want: 2},
		{text: "abcdefgh", want: 3},
		{text: "привет", want: 2},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}

	msgs := []Message{{Role: RoleUser, Content: "abcdefg"}, {Role: RoleAssistant, Content: "a"}}
	if got := EstimateMessagesTokens(msgs); got != 3 {
		t.Errorf("EstimateMessagesTokens() = %d, want 3", got)
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleSystem, Content: "prior context"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	if len(system) != 2 || system[1] != "prior context" {
		t.Errorf("system = %v", system)
	}
	if len(turns) != 2 || turns[0].Role != RoleUser {
		t.Errorf("turns = %v", turns)
	}
}
