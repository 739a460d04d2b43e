package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength matches the conversations.title column
const MaxTitleLength = 255

// MaxPageSize is the largest page a listing may request
const MaxPageSize = 1000

// ErrEmptyMessage is returned for a message with no visible content
var ErrEmptyMessage = errors.New("message cannot be empty")

// ChatRequestValidator validates chat and conversation requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateMessage validates a chat message
func (v *ChatRequestValidator) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// ValidateTemperature validates the temperature parameter
func (v *ChatRequestValidator) ValidateTemperature(temperature *float64) error {
	if temperature == nil {
		return nil // Temperature is optional
	}

	if *temperature < 0 || *temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", *temperature)
	}
	return nil
}

// ValidateTitle validates a conversation title. Empty is allowed and means the default title.
func (v *ChatRequestValidator) ValidateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters long, got %d", MaxTitleLength, n)
	}
	return nil
}

// ValidatePage validates listing pagination. A zero limit means the store default.
func (v *ChatRequestValidator) ValidatePage(offset, limit int) error {
	if offset < 0 {
		return fmt.Errorf("offset must not be negative, got %d", offset)
	}
	if limit < 0 || limit > MaxPageSize {
		return fmt.Errorf("limit must be between 0 and %d, got %d", MaxPageSize, limit)
	}
	return nil
}

// ValidateChatRequest validates a complete chat request
func (v *ChatRequestValidator) ValidateChatRequest(message string, temperature *float64) error {
	if err := v.ValidateMessage(message); err != nil {
		return err
	}

	if err := v.ValidateTemperature(temperature); err != nil {
		return err
	}

	return nil
}
