package sqlstore

import (
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

const conversationColumns = `id, user_id, title, summary, message_count, total_tokens, is_active, is_deleted, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*db.Conversation, error) {
	var conv db.Conversation
	var summary sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &summary, &conv.MessageCount, &conv.TotalTokens,
		&conv.IsActive, &conv.IsDeleted, &deletedAt, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if summary.Valid {
		conv.Summary = &summary.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		conv.DeletedAt = &t
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return &conv, nil
}

// CreateConversation inserts a new active conversation with zeroed counters
func (s *Store) CreateConversation(ctx context.Context, id string, userID int64, title string) (*db.Conversation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if title == "" {
		title = db.DefaultTitle
	}
	now := s.now()

	query := s.rebind(`
	INSERT INTO conversations (id, user_id, title, message_count, total_tokens, is_active, is_deleted, created_at, updated_at)
	VALUES (?, ?, ?, 0, 0, ?, ?, ?, ?)
	`)

	if _, err := s.conn.ExecContext(ctx, query, id, userID, title, true, false, now, now); err != nil {
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"conversation_id": id, "user_id": userID}).Info("Created new conversation")

	return &db.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     title,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetConversation retrieves a conversation that has not been soft-deleted
func (s *Store) GetConversation(ctx context.Context, id string) (*db.Conversation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE id = ? AND is_deleted = ?`)

	conv, err := scanConversation(s.conn.QueryRowContext(ctx, query, id, false))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns one page of a user's live conversations, most recently updated first,
// together with the total number of live conversations the user has.
func (s *Store) ListConversations(ctx context.Context, userID int64, offset, limit int) ([]db.Conversation, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	offset, limit = normalizePage(offset, limit)

	var total int
	countQuery := s.rebind(`SELECT COUNT(*) FROM conversations WHERE user_id = ? AND is_deleted = ?`)
	if err := s.conn.QueryRowContext(ctx, countQuery, userID, false).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting conversations: %w", err)
	}

	query := s.rebind(`
	SELECT ` + conversationColumns + `
	FROM conversations
	WHERE user_id = ? AND is_deleted = ?
	ORDER BY updated_at DESC, id ASC
	LIMIT ? OFFSET ?
	`)

	rows, err := s.conn.QueryContext(ctx, query, userID, false, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]db.Conversation, 0, limit)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, total, nil
}

// UpdateTitle sets the conversation title and returns the updated row
func (s *Store) UpdateTitle(ctx context.Context, conversationID, title string) (*db.Conversation, error) {
	updated, err := s.exec(ctx, "title", `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND is_deleted = ?`,
		title, s.now(), conversationID, false)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, db.ErrNotFound
	}

	logger.Log.WithFields(logrus.Fields{"conversation_id": conversationID, "title": title}).Info("Updated conversation title")
	return s.GetConversation(ctx, conversationID)
}

// UpdateSummary replaces the rolling summary
func (s *Store) UpdateSummary(ctx context.Context, conversationID, summary string) (bool, error) {
	return s.exec(ctx, "summary", `UPDATE conversations SET summary = ?, updated_at = ? WHERE id = ? AND is_deleted = ?`,
		summary, s.now(), conversationID, false)
}

// UpdateCounters overwrites the cached message and token totals
func (s *Store) UpdateCounters(ctx context.Context, conversationID string, messageCount, totalTokens int) (bool, error) {
	return s.exec(ctx, "counters", `UPDATE conversations SET message_count = ?, total_tokens = ?, updated_at = ? WHERE id = ? AND is_deleted = ?`,
		messageCount, totalTokens, s.now(), conversationID, false)
}

// SetActive flips the is_active flag
func (s *Store) SetActive(ctx context.Context, conversationID string, active bool) (bool, error) {
	return s.exec(ctx, "active flag", `UPDATE conversations SET is_active = ?, updated_at = ? WHERE id = ? AND is_deleted = ?`,
		active, s.now(), conversationID, false)
}

// SoftDeleteConversation marks the conversation deleted; its messages are kept
func (s *Store) SoftDeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	now := s.now()
	deleted, err := s.exec(ctx, "deleted flag", `UPDATE conversations SET is_deleted = ?, is_active = ?, deleted_at = ?, updated_at = ? WHERE id = ? AND is_deleted = ?`,
		true, false, now, now, conversationID, false)
	if err != nil {
		return false, err
	}
	if deleted {
		logger.Log.WithField("conversation_id", conversationID).Info("Soft-deleted conversation")
	}
	return deleted, nil
}

// exec runs a single-row update and reports whether a row matched
func (s *Store) exec(ctx context.Context, what, query string, args ...any) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("error updating conversation %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n > 0, nil
}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}
