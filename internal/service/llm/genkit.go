package llm

import (
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

const genkitProviderName = "openrouter"

// GenkitProvider implements LLMProvider using Firebase Genkit over an OpenAI-compatible endpoint via compat_oai
type GenkitProvider struct {
	genkit *genkit.Genkit
	models *config.ModelsConfig
}

// NewGenkitProvider creates a new Genkit provider instance
func NewGenkitProvider(ctx context.Context, llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig) (*GenkitProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, fmt.Errorf("genkit: %w", ErrNotConfigured)
	}

	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}

	defaultModel := modelsConfig.GetDefaultModel()

	// Failures surface to the caller, which serves its own fallback
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if llmConfig.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(llmConfig.RequestTimeout))
	}

	g := genkit.Init(ctx,
		genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: genkitProviderName,
			APIKey:   llmConfig.APIKey,
			BaseURL:  baseURL,
			Opts:     opts,
		}),
		genkit.WithDefaultModel(genkitModelName(defaultModel)),
	)

	logger.Log.WithField("default_model", defaultModel).Info("Initialized Genkit provider")

	return &GenkitProvider{
		genkit: g,
		models: modelsConfig,
	}, nil
}

func (p *GenkitProvider) Name() string         { return "genkit" }
func (p *GenkitProvider) DefaultModel() string { return p.models.GetDefaultModel() }

func genkitModelName(model string) string {
	if strings.HasPrefix(model, genkitProviderName+"/") {
		return model
	}
	return genkitProviderName + "/" + model
}

func toGenkitMessages(messages []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(messages))
	for _, msg := range messages {
		role := ai.RoleUser
		switch msg.Role {
		case RoleSystem:
			role = ai.RoleSystem
		case RoleAssistant:
			role = ai.RoleModel
		}
		out = append(out, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(msg.Content)},
		})
	}
	return out
}

func (p *GenkitProvider) options(req ChatRequest) []ai.GenerateOption {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	// compat_oai accepts OpenAI request parameters as model config
	cfg := &openai.ChatCompletionNewParams{}
	if req.Temperature != nil {
		cfg.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	return []ai.GenerateOption{
		ai.WithMessages(toGenkitMessages(req.Messages)...),
		ai.WithModelName(genkitModelName(model)),
		ai.WithConfig(cfg),
	}
}

// Chat generates a complete response
func (p *GenkitProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         req.Model,
		"message_count": len(req.Messages),
	}).Info("Calling Genkit")

	resp, err := genkit.Generate(ctx, p.genkit, p.options(req)...)
	if err != nil {
		return "", fmt.Errorf("genkit generation failed: %w", err)
	}
	return resp.Text(), nil
}

// ChatStream generates with a streaming callback feeding the returned channel
func (p *GenkitProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         req.Model,
		"message_count": len(req.Messages),
	}).Info("Calling Genkit (streaming)")

	chunks := make(chan StreamChunk)
	opts := append(p.options(req), ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
		for _, part := range chunk.Content {
			if !part.IsText() || part.Text == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Content: part.Text}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}))

	go func() {
		defer close(chunks)

		resp, err := genkit.Generate(ctx, p.genkit, opts...)
		if err != nil {
			logger.Log.WithError(err).Error("Stream error")
			select {
			case chunks <- StreamChunk{Err: fmt.Errorf("genkit generation failed: %w", err), IsDone: true}:
			case <-ctx.Done():
			}
			return
		}

		var usage *Usage
		if resp.Usage != nil {
			usage = &Usage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			}
		}

		select {
		case chunks <- StreamChunk{Usage: usage, IsDone: true}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}
