package llm

import (
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
)

// anthropicDefaultMaxTokens is sent when the request sets no limit; the API requires one
const anthropicDefaultMaxTokens = 1024

// AnthropicProvider implements LLMProvider using the Anthropic API
type AnthropicProvider struct {
	client anthropic.Client
	models *config.ModelsConfig
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig) (*AnthropicProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(llmConfig.APIKey),
		option.WithMaxRetries(0),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(llmConfig.BaseURL))
	}
	if llmConfig.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(llmConfig.RequestTimeout))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		models: modelsConfig,
	}, nil
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.models.GetDefaultModel() }

func (p *AnthropicProvider) params(req ChatRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	system, turns := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  convertAnthropicMessages(turns),
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

// Chat sends the messages and concatenates the text blocks of the reply
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	params := p.params(req)

	logger.Log.WithFields(logrus.Fields{
		"model":         params.Model,
		"message_count": len(req.Messages),
	}).Info("Calling Anthropic API")

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(b.Text)
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}).Debug("Anthropic usage")

	return content.String(), nil
}

// ChatStream streams text deltas
func (p *AnthropicProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	params := p.params(req)

	logger.Log.WithFields(logrus.Fields{
		"model":         params.Model,
		"message_count": len(req.Messages),
	}).Info("Calling Anthropic API (streaming)")

	stream := p.client.Messages.NewStreaming(ctx, params)
	ch := make(chan StreamChunk, 64)

	go func() {
		defer close(ch)
		defer stream.Close()

		var usage *Usage
		for stream.Next() {
			event := stream.Current()
			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if e.Delta.Type == "text_delta" && e.Delta.Text != "" {
					ch <- StreamChunk{Content: e.Delta.Text}
				}
			case anthropic.MessageDeltaEvent:
				if e.Usage.OutputTokens > 0 {
					usage = &Usage{CompletionTokens: int(e.Usage.OutputTokens), TotalTokens: int(e.Usage.OutputTokens)}
				}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- StreamChunk{Err: fmt.Errorf("anthropic stream failed: %w", err), IsDone: true}
			return
		}
		ch <- StreamChunk{Usage: usage, IsDone: true}
	}()

	return ch, nil
}

func convertAnthropicMessages(turns []Message) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		if m.Role == RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	return msgs
}
