package session

import (
	"chat-memory/internal/repository/db"
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for a missing conversation id or an unknown role
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when the conversation is absent or soft-deleted.
	// It also matches db.ErrNotFound under errors.Is.
	ErrNotFound = fmt.Errorf("session: %w", db.ErrNotFound)
)
