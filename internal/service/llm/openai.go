package llm

import (
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider implements LLMProvider using the OpenAI API.
// Also works with compatible APIs (vLLM, Ollama, SiliconFlow) via BaseURL.
type OpenAIProvider struct {
	client openai.Client
	models *config.ModelsConfig
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig) (*OpenAIProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
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

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		models: modelsConfig,
	}, nil
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.models.GetDefaultModel() }

func (p *OpenAIProvider) params(req ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

// Chat sends the messages and returns the first choice's content
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	params := p.params(req)

	logger.Log.WithFields(logrus.Fields{
		"model":         params.Model,
		"message_count": len(req.Messages),
	}).Info("Calling OpenAI API")

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from API")
	}

	logger.Log.WithFields(logrus.Fields{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("OpenAI usage")

	return resp.Choices[0].Message.Content, nil
}

// ChatStream streams completion deltas
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	params := p.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	logger.Log.WithFields(logrus.Fields{
		"model":         params.Model,
		"message_count": len(req.Messages),
	}).Info("Calling OpenAI API (streaming)")

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan StreamChunk, 64)

	go func() {
		defer close(ch)
		defer stream.Close()

		var usage *Usage
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = &Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				ch <- StreamChunk{Content: chunk.Choices[0].Delta.Content}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- StreamChunk{Err: fmt.Errorf("openai stream failed: %w", err), IsDone: true}
			return
		}
		ch <- StreamChunk{Usage: usage, IsDone: true}
	}()

	return ch, nil
}

func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}
