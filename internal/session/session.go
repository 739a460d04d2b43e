// Package session keeps the bounded, cache-backed window of recent messages
// for each conversation and rolls it into a summary once it grows too long.
package session

import (
	"chat-memory/internal/repository/db"
	"chat-memory/internal/service/llm"
	"time"
)

// Message is one entry of the live window
type Message struct {
	Role       db.Role   `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Tokens     int       `json:"tokens"`
	Importance float64   `json:"importance"`
}

// Session is the cached projection of a conversation: the recent window,
// its running token count and the rolling summary of everything before it.
type Session struct {
	Version        int       `json:"v"`
	UserID         int64     `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	TotalTokens    int       `json:"total_tokens"`
	LastActivity   time.Time `json:"last_activity"`
	MaxTokens      int       `json:"max_tokens"`
	MaxRounds      int       `json:"max_rounds"`
	Summary        *string   `json:"summary"`
}

// New returns an empty session
func New(userID int64, conversationID string, maxTokens, maxRounds int, now time.Time) *Session {
	return &Session{
		Version:        currentVersion,
		UserID:         userID,
		ConversationID: conversationID,
		Messages:       []Message{},
		LastActivity:   now.UTC(),
		MaxTokens:      maxTokens,
		MaxRounds:      maxRounds,
	}
}

// Rounds counts the user messages in the window
func (s *Session) Rounds() int {
	rounds := 0
	for _, m := range s.Messages {
		if m.Role == db.RoleUser {
			rounds++
		}
	}
	return rounds
}

// History returns the window as role/content pairs in chronological order
func (s *Session) History() []llm.Message {
	history := make([]llm.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		history = append(history, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return history
}

// OverBudget reports whether the window has exceeded its advisory token budget
func (s *Session) OverBudget() bool {
	return s.MaxTokens > 0 && s.TotalTokens > s.MaxTokens
}

func (s *Session) clearWindow(summary string) {
	s.Messages = []Message{}
	s.TotalTokens = 0
	s.Summary = &summary
}
