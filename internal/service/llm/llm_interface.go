package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a provider is missing credentials
var ErrNotConfigured = errors.New("llm provider not configured")

// Roles understood by every provider
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role/content pair sent to a model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-neutral completion request. Messages carry any
// system prompt as leading system entries.
type ChatRequest struct {
	Messages    []Message
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Usage reports token accounting returned by the provider, when available
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one increment of a streamed completion. The final chunk has
// IsDone set and may carry Usage; a chunk with Err set also ends the stream.
type StreamChunk struct {
	Content string
	Usage   *Usage
	IsDone  bool
	Err     error
}

// LLMProvider defines the interface for LLM providers (OpenAI-compatible, OpenRouter direct API, Genkit, Anthropic).
// Providers never retry internally.
type LLMProvider interface {
	// Chat sends the messages and returns the full response text
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// ChatStream sends the messages and streams the response
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)

	// Name identifies the provider in logs
	Name() string

	// DefaultModel returns the model used when a request names none
	DefaultModel() string
}

// Float returns a pointer to v, for ChatRequest.Temperature
func Float(v float64) *float64 {
	return &v
}

// splitSystem separates leading and interleaved system messages from the conversation turns.
// Anthropic takes the system prompt out of band.
func splitSystem(messages []Message) (system []string, turns []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
