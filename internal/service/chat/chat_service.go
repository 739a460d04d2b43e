package chat

import (
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"chat-memory/internal/service/llm"
	"chat-memory/internal/session"
	"chat-memory/pkg/validation"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrEmptyMessage is returned when the user message has no content
var ErrEmptyMessage = validation.ErrEmptyMessage

var errEmptyCompletion = errors.New("provider returned an empty completion")

// SessionManager is the short-term memory the chat flow records turns into
type SessionManager interface {
	AddMessage(ctx context.Context, userID int64, conversationID, role, content string, tokens int) (*session.Session, error)
	GetConversationContext(ctx context.Context, userID int64, conversationID string) ([]llm.Message, error)
}

// ConversationCreator starts a conversation when a message arrives without one
type ConversationCreator interface {
	CreateConversation(ctx context.Context, userID int64, title string) (*db.Conversation, error)
}

// SendMessageRequest contains all the parameters needed to send a message
type SendMessageRequest struct {
	Message        string
	ConversationID string
	Model          string
	Temperature    *float64
	UserID         int64
}

// SendMessageResponse contains the response from sending a message
type SendMessageResponse struct {
	Response       string
	ConversationID string
	Model          string
	// Fallback is set when the provider failed and a canned reply was served
	Fallback bool
}

// StreamMessageChunk represents a chunk of streaming response. The first chunk
// carries ConvID and Model; the last has Done set.
type StreamMessageChunk struct {
	Content  string
	ConvID   string
	Model    string
	Usage    *llm.Usage
	Fallback bool
	Done     bool
}

// ChatService handles the business logic for chat operations
type ChatService struct {
	sessions          SessionManager
	conversations     ConversationCreator
	llmProvider       llm.LLMProvider
	models            *config.ModelsConfig
	fallbackResponses []string
	pick              func(n int) int
	validator         *validation.ChatRequestValidator
}

// NewChatService creates a new ChatService
func NewChatService(sessions SessionManager, conversations ConversationCreator, provider llm.LLMProvider, llmConfig *config.LLMConfig, models *config.ModelsConfig) *ChatService {
	fallbacks := config.DefaultFallbackResponses()
	if llmConfig != nil && len(llmConfig.FallbackResponses) > 0 {
		fallbacks = llmConfig.FallbackResponses
	}
	return &ChatService{
		sessions:          sessions,
		conversations:     conversations,
		llmProvider:       provider,
		models:            models,
		fallbackResponses: fallbacks,
		pick:              rand.IntN,
		validator:         validation.NewChatRequestValidator(),
	}
}

// SendMessage records the user turn, asks the model with the assembled context and
// records the reply. A provider failure is answered with a canned reply.
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error) {
	conversationID, messages, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	usedModel := s.usedModel(req.Model)

	log := logger.WithConversation(conversationID).WithFields(logrus.Fields{
		"user_id":        req.UserID,
		"model":          usedModel,
		"message_count":  len(messages),
		"context_tokens": llm.EstimateMessagesTokens(messages),
	})
	log.Debug("Prepared for LLM call")

	fallback := false
	response, err := s.llmProvider.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Model:       req.Model,
		Temperature: req.Temperature,
	})
	if err == nil && strings.TrimSpace(response) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		log.WithError(err).Error("LLM call failed, serving fallback reply")
		response = s.fallbackResponse()
		fallback = true
	}

	s.recordReply(ctx, log, req.UserID, conversationID, response)

	return &SendMessageResponse{
		Response:       response,
		ConversationID: conversationID,
		Model:          usedModel,
		Fallback:       fallback,
	}, nil
}

// SendMessageStream is SendMessage with the reply streamed. The assistant turn is
// recorded once the stream completes, even if the caller stops reading.
func (s *ChatService) SendMessageStream(ctx context.Context, req SendMessageRequest) (<-chan StreamMessageChunk, error) {
	conversationID, messages, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	usedModel := s.usedModel(req.Model)

	log := logger.WithConversation(conversationID).WithFields(logrus.Fields{
		"user_id":        req.UserID,
		"model":          usedModel,
		"message_count":  len(messages),
		"context_tokens": llm.EstimateMessagesTokens(messages),
	})
	log.Debug("Starting streaming LLM call")

	llmChunks, err := s.llmProvider.ChatStream(ctx, llm.ChatRequest{
		Messages:    messages,
		Model:       req.Model,
		Temperature: req.Temperature,
	})
	if err != nil {
		log.WithError(err).Error("LLM stream failed to start, serving fallback reply")
		llmChunks = nil
	}

	outputChan := make(chan StreamMessageChunk)

	go func() {
		defer close(outputChan)

		send := func(chunk StreamMessageChunk) bool {
			select {
			case outputChan <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var fullResponse strings.Builder
		var usage *llm.Usage
		first := true

		for chunk := range orEmpty(llmChunks) {
			if chunk.Err != nil {
				log.WithError(chunk.Err).Error("Stream error")
				break
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if chunk.Content == "" {
				continue
			}
			out := StreamMessageChunk{Content: chunk.Content}
			if first {
				out.ConvID, out.Model = conversationID, usedModel
				first = false
			}
			fullResponse.WriteString(chunk.Content)
			if !send(out) {
				go drain(llmChunks)
				break
			}
		}

		fallback := false
		if fullResponse.Len() == 0 && ctx.Err() == nil {
			fallback = true
			reply := s.fallbackResponse()
			fullResponse.WriteString(reply)
			send(StreamMessageChunk{Content: reply, ConvID: conversationID, Model: usedModel, Fallback: true})
		}

		if fullResponse.Len() > 0 {
			s.recordReply(context.WithoutCancel(ctx), log, req.UserID, conversationID, fullResponse.String())
			log.WithField("response_chars", fullResponse.Len()).Debug("Completed streaming response")
		}

		send(StreamMessageChunk{Usage: usage, Fallback: fallback, Done: true})
	}()

	return outputChan, nil
}

// prepare validates the request, records the user turn and returns the model context
// ending with that turn.
func (s *ChatService) prepare(ctx context.Context, req SendMessageRequest) (string, []llm.Message, error) {
	if err := s.validator.ValidateChatRequest(req.Message, req.Temperature); err != nil {
		return "", nil, err
	}
	if err := s.validateModel(req.Model); err != nil {
		return "", nil, fmt.Errorf("invalid model: %w", err)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		if s.conversations == nil {
			return "", nil, errors.New("conversation id is required")
		}
		conversation, err := s.conversations.CreateConversation(ctx, req.UserID, "")
		if err != nil {
			return "", nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conversation.ID
	}

	if _, err := s.sessions.AddMessage(ctx, req.UserID, conversationID, llm.RoleUser, req.Message, llm.EstimateTokens(req.Message)); err != nil {
		return "", nil, fmt.Errorf("failed to save user message: %w", err)
	}

	messages, err := s.sessions.GetConversationContext(ctx, req.UserID, conversationID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to retrieve conversation context: %w", err)
	}

	// A rollover on this turn folds the question into the summary and empties the window
	current := llm.Message{Role: llm.RoleUser, Content: req.Message}
	if len(messages) == 0 || messages[len(messages)-1] != current {
		messages = append(messages, current)
	}
	return conversationID, messages, nil
}

// recordReply stores the assistant turn. Failures are logged only; the user already has the reply.
func (s *ChatService) recordReply(ctx context.Context, log *logrus.Entry, userID int64, conversationID, response string) {
	if _, err := s.sessions.AddMessage(ctx, userID, conversationID, llm.RoleAssistant, response, llm.EstimateTokens(response)); err != nil {
		log.WithError(err).Error("Error adding assistant message")
	}
}

func (s *ChatService) fallbackResponse() string {
	return s.fallbackResponses[s.pick(len(s.fallbackResponses))]
}

func (s *ChatService) usedModel(model string) string {
	if model == "" {
		return s.llmProvider.DefaultModel()
	}
	return model
}

// validateModel checks if the provided model ID is valid
func (s *ChatService) validateModel(modelID string) error {
	if modelID != "" && s.models != nil && !s.models.IsValidModel(modelID) {
		return fmt.Errorf("invalid model specified")
	}
	return nil
}

// orEmpty returns a closed channel in place of a nil one so ranging over it ends at once
func orEmpty(ch <-chan llm.StreamChunk) <-chan llm.StreamChunk {
	if ch != nil {
		return ch
	}
	closed := make(chan llm.StreamChunk)
	close(closed)
	return closed
}

// drain consumes the rest of an abandoned stream so the provider goroutine can exit
func drain(ch <-chan llm.StreamChunk) {
	for range ch {
	}
}
