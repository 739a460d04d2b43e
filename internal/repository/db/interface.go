package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a conversation does not exist or has been soft-deleted
var ErrNotFound = errors.New("conversation not found")

// ConversationStore defines the durable operations on conversations and their message log.
// Implementations must keep MessageCount and TotalTokens equal to the count and token sum
// of the persisted messages, updating them in the same transaction as AppendMessage.
type ConversationStore interface {
	// Conversations
	CreateConversation(ctx context.Context, id string, userID int64, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64, offset, limit int) ([]Conversation, int, error)
	UpdateTitle(ctx context.Context, conversationID, title string) (*Conversation, error)
	UpdateSummary(ctx context.Context, conversationID, summary string) (bool, error)
	UpdateCounters(ctx context.Context, conversationID string, messageCount, totalTokens int) (bool, error)
	SetActive(ctx context.Context, conversationID string, active bool) (bool, error)
	SoftDeleteConversation(ctx context.Context, conversationID string) (bool, error)

	// Messages
	AppendMessage(ctx context.Context, conversationID, messageID string, role Role, content string, tokens int, importance float64) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]Message, int, error)
	CountMessages(ctx context.Context, conversationID string, role Role) (int, error)

	Close() error
}
