package db

import "time"

// Role is the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultTitle is given to conversations created without one
const DefaultTitle = "New conversation"

// ParseRole maps a caller-supplied role onto a stored role. "model" is accepted as an alias for assistant.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "user":
		return RoleUser, true
	case "assistant", "model":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	default:
		return "", false
	}
}

// Conversation represents a conversation in the database
type Conversation struct {
	ID           string
	UserID       int64
	Title        string
	Summary      *string
	MessageCount int
	TotalTokens  int
	IsActive     bool
	IsDeleted    bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message represents an append-only message in a conversation
type Message struct {
	ID             int64
	ConversationID string
	MessageID      string
	Role           Role
	Content        string
	Tokens         int
	Importance     float64
	CreatedAt      time.Time
}

// MessageTimestamp returns the creation time stamped on a new message.
// Assistant replies are pushed one second ahead so they always sort after
// the user message that provoked them, even within the same clock tick.
func MessageTimestamp(role Role, now time.Time) time.Time {
	if role == RoleAssistant {
		return now.Add(time.Second)
	}
	return now
}
