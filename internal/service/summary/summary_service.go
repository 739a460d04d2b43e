package summary

import (
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"chat-memory/internal/service/llm"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 500
	titleTemperature   = 0.7
	titleMaxTokens     = 50
	titleMaxRunes      = 20
)

// ErrEmptySummary is returned when the model replies with nothing usable
var ErrEmptySummary = errors.New("summary: model returned an empty summary")

// SummaryService turns conversation windows into rolling summaries and
// first messages into titles
type SummaryService struct {
	llmProvider         llm.LLMProvider
	model               string
	summarizationPrompt string
	titlePrompt         string
}

// NewSummaryService creates a new SummaryService. Empty prompts take the defaults.
func NewSummaryService(provider llm.LLMProvider, llmConfig *config.LLMConfig) *SummaryService {
	s := &SummaryService{
		llmProvider:         provider,
		summarizationPrompt: config.DefaultSummarizationPrompt,
		titlePrompt:         config.DefaultTitlePrompt,
	}
	if llmConfig != nil {
		s.model = llmConfig.Model
		if llmConfig.SummarizationPrompt != "" {
			s.summarizationPrompt = llmConfig.SummarizationPrompt
		}
		if llmConfig.TitlePrompt != "" {
			s.titlePrompt = llmConfig.TitlePrompt
		}
	}
	return s
}

// Summarize folds the transcript and the previous summary, if any, into a new summary.
// Generation errors are returned to the caller unchanged in meaning.
func (s *SummaryService) Summarize(ctx context.Context, transcript []llm.Message, prior *string) (string, error) {
	hasPrior := prior != nil && *prior != ""

	logger.Log.WithFields(logrus.Fields{
		"message_count": len(transcript),
		"has_prior":     hasPrior,
	}).Info("Calling LLM to generate summary")

	content, err := s.llmProvider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.summarizationPrompt},
			{Role: llm.RoleUser, Content: buildSummaryInput(transcript, prior)},
		},
		Model:       s.model,
		Temperature: llm.Float(summaryTemperature),
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM error during summarization: %w", err)
	}

	summary := strings.TrimSpace(content)
	if summary == "" {
		return "", ErrEmptySummary
	}

	logger.Log.WithField("summary_chars", len(summary)).Info("Generated summary")
	return summary, nil
}

// GenerateTitle asks the model for a short title for the first user message.
// Failures degrade to db.DefaultTitle and are only logged.
func (s *SummaryService) GenerateTitle(ctx context.Context, first string) (string, error) {
	content, err := s.llmProvider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.titlePrompt},
			{Role: llm.RoleUser, Content: "User question: " + first},
		},
		Model:       s.model,
		Temperature: llm.Float(titleTemperature),
		MaxTokens:   titleMaxTokens,
	})
	if err != nil {
		logger.Log.WithError(err).Warn("Title generation failed, using placeholder")
		return db.DefaultTitle, nil
	}

	title := strings.Trim(strings.TrimSpace(content), `"'`)
	if title == "" {
		return db.DefaultTitle, nil
	}
	if r := []rune(title); len(r) > titleMaxRunes {
		title = string(r[:titleMaxRunes])
	}

	logger.Log.WithField("title", title).Debug("Generated title")
	return title, nil
}

// buildSummaryInput renders the prior summary and the transcript as plain text
func buildSummaryInput(transcript []llm.Message, prior *string) string {
	var b strings.Builder
	if prior != nil && *prior != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(*prior)
		b.WriteString("\n\nNew messages:\n")
	} else {
		b.WriteString("Conversation:\n")
	}
	b.WriteString(formatTranscript(transcript))
	return b.String()
}

func formatTranscript(transcript []llm.Message) string {
	lines := make([]string, 0, len(transcript))
	for _, msg := range transcript {
		switch msg.Role {
		case llm.RoleUser:
			lines = append(lines, "User: "+msg.Content)
		case llm.RoleAssistant:
			lines = append(lines, "Assistant: "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}
