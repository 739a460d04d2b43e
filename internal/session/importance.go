package session

import (
	"chat-memory/internal/repository/db"
	"strings"
	"unicode/utf8"
)

const (
	baseImportance    = 1.0
	maxImportance     = 2.0
	defaultRoleWeight = 0.5
	keywordBonus      = 0.1
)

// Scorer rates how much a message matters for later summarization
type Scorer struct {
	roleWeights map[string]float64
	keywords    []string
}

// NewScorer builds a scorer. Keywords match case-insensitively as substrings.
func NewScorer(roleWeights map[string]float64, keywords []string) *Scorer {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Scorer{roleWeights: roleWeights, keywords: lowered}
}

// Score returns 1.0 plus the role weight, a length band bonus and a keyword bonus, capped at 2.0
func (s *Scorer) Score(role db.Role, content string) float64 {
	score := baseImportance

	weight, ok := s.roleWeights[string(role)]
	if !ok {
		weight = defaultRoleWeight
	}
	score += weight

	switch n := utf8.RuneCountInString(content); {
	case n > 500:
		score += 0.1
	case n >= 50:
		score += 0.2
	}

	lower := strings.ToLower(content)
	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			score += keywordBonus
			break
		}
	}

	if score > maxImportance {
		score = maxImportance
	}
	return score
}

// titleLimit is the number of characters of the first user message kept as the title
const titleLimit = 30

// TitleFromMessage truncates the first user message into a conversation title
func TitleFromMessage(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= titleLimit {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleLimit]) + "..."
}
