package sqlstore

import (
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AppendMessage persists a message and bumps the conversation counters in one transaction.
// It returns db.ErrNotFound when the conversation is missing or soft-deleted.
func (s *Store) AppendMessage(ctx context.Context, conversationID, messageID string, role db.Role, content string, tokens int, importance float64) (*db.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	createdAt := db.MessageTimestamp(role, now)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
	UPDATE conversations
	SET message_count = message_count + 1, total_tokens = total_tokens + ?, updated_at = ?
	WHERE id = ? AND is_deleted = ?
	`), tokens, now, conversationID, false)
	if err != nil {
		return nil, fmt.Errorf("error updating conversation counters: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("error reading affected rows: %w", err)
	} else if n == 0 {
		return nil, db.ErrNotFound
	}

	msg := &db.Message{
		ConversationID: conversationID,
		MessageID:      messageID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		Importance:     importance,
		CreatedAt:      createdAt,
	}

	insert := s.rebind(`
	INSERT INTO conversation_messages (conversation_id, message_id, role, content, tokens, importance, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING id
	`)
	if err := tx.QueryRowContext(ctx, insert, conversationID, messageID, string(role), content, tokens, importance, createdAt).Scan(&msg.ID); err != nil {
		return nil, fmt.Errorf("error saving message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing message: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_id":      messageID,
		"role":            role,
		"tokens":          tokens,
	}).Debug("Saved message")

	return msg, nil
}

// ListMessages returns one page of a conversation's messages in chronological order
// together with the total number of messages stored for it.
func (s *Store) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]db.Message, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	offset, limit = normalizePage(offset, limit)

	var total int
	countQuery := s.rebind(`SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = ?`)
	if err := s.conn.QueryRowContext(ctx, countQuery, conversationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting messages: %w", err)
	}

	query := s.rebind(`
	SELECT id, conversation_id, message_id, role, content, tokens, importance, created_at
	FROM conversation_messages
	WHERE conversation_id = ?
	ORDER BY created_at ASC, id ASC
	LIMIT ? OFFSET ?
	`)

	rows, err := s.conn.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]db.Message, 0, limit)
	for rows.Next() {
		var msg db.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.MessageID, &role, &msg.Content, &msg.Tokens, &msg.Importance, &msg.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("error scanning message: %w", err)
		}
		msg.Role = db.Role(role)
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, total, nil
}

// CountMessages counts the stored messages of a conversation authored by role
func (s *Store) CountMessages(ctx context.Context, conversationID string, role db.Role) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int
	query := s.rebind(`SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = ? AND role = ?`)
	if err := s.conn.QueryRowContext(ctx, query, conversationID, string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting messages: %w", err)
	}
	return count, nil
}
