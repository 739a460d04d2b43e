package session

import (
	"encoding/json"
	"fmt"
)

// currentVersion is written into every encoded session as "v"
const currentVersion = 1

// Encode serialises a session for the cache
func Encode(s *Session) (string, error) {
	s.Version = currentVersion
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("error encoding session: %w", err)
	}
	return string(data), nil
}

// Decode parses a cached session. Records without a version are treated as
// version 1; missing fields fall back to the given budgets or zero values and
// unknown fields are ignored.
func Decode(raw string, maxTokens, maxRounds int) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("error decoding session: %w", err)
	}
	if s.ConversationID == "" {
		return nil, fmt.Errorf("error decoding session: missing conversation_id")
	}

	if s.Version == 0 {
		s.Version = currentVersion
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = maxTokens
	}
	if s.MaxRounds <= 0 {
		s.MaxRounds = maxRounds
	}

	s.LastActivity = s.LastActivity.UTC()
	for i := range s.Messages {
		s.Messages[i].Timestamp = s.Messages[i].Timestamp.UTC()
	}
	return &s, nil
}
