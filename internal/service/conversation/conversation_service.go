package conversation

import (
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"chat-memory/pkg/validation"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrUnauthorized is returned when a user touches a conversation they do not own
var ErrUnauthorized = errors.New("unauthorized: user does not own this conversation")

// titleScanLimit bounds how many messages SuggestTitle reads looking for the first user turn
const titleScanLimit = 20

// SessionClearer drops the cached short-term memory of a conversation
type SessionClearer interface {
	ClearSession(ctx context.Context, conversationID string) error
}

// TitleGenerator proposes a title for a conversation's first user message
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, first string) (string, error)
}

// ConversationPage is one page of a user's conversations
type ConversationPage struct {
	Conversations []db.Conversation
	Total         int
	Offset        int
	Limit         int
}

// MessagePage is one page of a conversation's durable history
type MessagePage struct {
	Messages []db.Message
	Total    int
	Offset   int
	Limit    int
}

// ConversationService handles the business logic for conversation management
type ConversationService struct {
	store     db.ConversationStore
	sessions  SessionClearer
	titles    TitleGenerator
	validator *validation.ChatRequestValidator
}

// NewConversationService creates a new ConversationService. titles may be nil,
// in which case SuggestTitle returns the placeholder.
func NewConversationService(store db.ConversationStore, sessions SessionClearer, titles TitleGenerator) *ConversationService {
	return &ConversationService{
		store:     store,
		sessions:  sessions,
		titles:    titles,
		validator: validation.NewChatRequestValidator(),
	}
}

// CreateConversation starts a new conversation for the user under a fresh id
func (s *ConversationService) CreateConversation(ctx context.Context, userID int64, title string) (*db.Conversation, error) {
	title = strings.TrimSpace(title)
	if err := s.validator.ValidateTitle(title); err != nil {
		return nil, err
	}
	if title == "" {
		title = db.DefaultTitle
	}

	conversation, err := s.store.CreateConversation(ctx, uuid.NewString(), userID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversation.ID,
		"user_id":         userID,
	}).Info("Created conversation")
	return conversation, nil
}

// GetUserConversations returns a page of the user's live conversations, most recently updated first
func (s *ConversationService) GetUserConversations(ctx context.Context, userID int64, offset, limit int) (*ConversationPage, error) {
	if err := s.validator.ValidatePage(offset, limit); err != nil {
		return nil, err
	}
	conversations, total, err := s.store.ListConversations(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve conversations: %w", err)
	}

	return &ConversationPage{
		Conversations: conversations,
		Total:         total,
		Offset:        offset,
		Limit:         limit,
	}, nil
}

// GetConversation returns a conversation the user owns
func (s *ConversationService) GetConversation(ctx context.Context, conversationID string, userID int64) (*db.Conversation, error) {
	return s.authorize(ctx, conversationID, userID)
}

// GetConversationMessages retrieves a page of messages from a conversation the user owns
func (s *ConversationService) GetConversationMessages(ctx context.Context, conversationID string, userID int64, offset, limit int) (*MessagePage, error) {
	if err := s.validator.ValidatePage(offset, limit); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	messages, total, err := s.store.ListMessages(ctx, conversationID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}

	return &MessagePage{
		Messages: messages,
		Total:    total,
		Offset:   offset,
		Limit:    limit,
	}, nil
}

// RenameConversation replaces the title of a conversation the user owns
func (s *ConversationService) RenameConversation(ctx context.Context, conversationID string, userID int64, title string) (*db.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	if err := s.validator.ValidateTitle(title); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	conversation, err := s.store.UpdateTitle(ctx, conversationID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to update title: %w", err)
	}
	return conversation, nil
}

// SetActive marks a conversation the user owns as active or inactive
func (s *ConversationService) SetActive(ctx context.Context, conversationID string, userID int64, active bool) error {
	if _, err := s.authorize(ctx, conversationID, userID); err != nil {
		return err
	}

	updated, err := s.store.SetActive(ctx, conversationID, active)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if !updated {
		return fmt.Errorf("conversation not found: %w", db.ErrNotFound)
	}
	return nil
}

// SuggestTitle asks the title generator for a title based on the first user
// message. Nothing is written; callers apply it with RenameConversation.
func (s *ConversationService) SuggestTitle(ctx context.Context, conversationID string, userID int64) (string, error) {
	if _, err := s.authorize(ctx, conversationID, userID); err != nil {
		return "", err
	}
	if s.titles == nil {
		return db.DefaultTitle, nil
	}

	messages, _, err := s.store.ListMessages(ctx, conversationID, 0, titleScanLimit)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve messages: %w", err)
	}
	for _, msg := range messages {
		if msg.Role == db.RoleUser {
			return s.titles.GenerateTitle(ctx, msg.Content)
		}
	}
	return db.DefaultTitle, nil
}

// DeleteConversation soft-deletes a conversation the user owns and drops its cached session
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID string, userID int64) error {
	if _, err := s.authorize(ctx, conversationID, userID); err != nil {
		return err
	}

	deleted, err := s.store.SoftDeleteConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if !deleted {
		return fmt.Errorf("conversation not found: %w", db.ErrNotFound)
	}

	if s.sessions != nil {
		if err := s.sessions.ClearSession(ctx, conversationID); err != nil {
			logger.WithConversation(conversationID).WithError(err).Warn("Failed to clear session after delete")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"user_id":         userID,
	}).Info("Deleted conversation")
	return nil
}

// authorize loads the conversation and verifies the user owns it
func (s *ConversationService) authorize(ctx context.Context, conversationID string, userID int64) (*db.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation not found: %w", err)
	}
	if conversation.UserID != userID {
		return nil, ErrUnauthorized
	}
	return conversation, nil
}
