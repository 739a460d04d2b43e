package llm

import (
	"bufio"
	"bytes"
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider implements LLMProvider using direct OpenRouter API calls
type OpenRouterProvider struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	models  *config.ModelsConfig
	client  *http.Client
}

// NewOpenRouterProvider creates a new OpenRouter provider with config
func NewOpenRouterProvider(llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig) *OpenRouterProvider {
	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	return &OpenRouterProvider{
		apiKey:  llmConfig.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: llmConfig.RequestTimeout,
		models:  modelsConfig,
		// No client-wide timeout: streams are bounded by the caller's context
		client: &http.Client{},
	}
}

type openRouterRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openRouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message Message `json:"message"`
		Delta   Message `json:"delta"`
	} `json:"choices"`
	Usage *openRouterUsage `json:"usage,omitempty"`
}

func (p *OpenRouterProvider) Name() string { return "openrouter" }

// DefaultModel returns the default model for OpenRouter provider
func (p *OpenRouterProvider) DefaultModel() string {
	return p.models.GetDefaultModel()
}

func (p *OpenRouterProvider) newRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Request, string, error) {
	if p.apiKey == "" {
		return nil, "", fmt.Errorf("openrouter: %w", ErrNotConfigured)
	}

	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	body := openRouterRequest{
		Model:       model,
		Messages:    req.Messages,
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, "", fmt.Errorf("error creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("HTTP-Referer", "http://localhost:3000")
	httpReq.Header.Set("X-Title", "Chat Memory")

	return httpReq, model, nil
}

// Chat sends a chat request and returns the full response
func (p *OpenRouterProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	httpReq, model, err := p.newRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(req.Messages),
	}).Info("Calling OpenRouter API")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp openRouterResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from API")
	}

	content := chatResp.Choices[0].Message.Content
	logger.Log.WithField("content_length", len(content)).Debug("Extracted content from response")
	return content, nil
}

// ChatStream sends a chat request and streams the response from the SSE body
func (p *OpenRouterProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	httpReq, model, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(req.Messages),
	}).Info("Calling OpenRouter API (streaming)")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)

		send := func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage *Usage
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()

			// Skip empty lines, comments and the [DONE] marker
			if line == "" || !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
				continue
			}

			var streamResp openRouterResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &streamResp); err != nil {
				logger.Log.WithError(err).Warn("Error parsing stream chunk")
				continue
			}

			// Usage is sent at the end with empty choices
			if streamResp.Usage != nil {
				usage = &Usage{
					PromptTokens:     streamResp.Usage.PromptTokens,
					CompletionTokens: streamResp.Usage.CompletionTokens,
					TotalTokens:      streamResp.Usage.TotalTokens,
				}
			}

			if len(streamResp.Choices) > 0 && streamResp.Choices[0].Delta.Content != "" {
				if !send(StreamChunk{Content: streamResp.Choices[0].Delta.Content}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			logger.Log.WithError(err).Error("Scanner error during streaming")
			send(StreamChunk{Err: fmt.Errorf("error reading stream: %w", err), IsDone: true})
			return
		}

		send(StreamChunk{Usage: usage, IsDone: true})
	}()

	return chunks, nil
}
