// Package sqlstore implements db.ConversationStore over database/sql.
// The postgres and sqlite packages open the connection and run migrations;
// the queries here are shared and written with '?' placeholders.
package sqlstore

import (
	"chat-memory/internal/repository/db"
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Dialect selects the placeholder syntax of the underlying driver
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// Ensure Store implements db.ConversationStore interface
var _ db.ConversationStore = (*Store)(nil)

// Store implements db.ConversationStore on a pooled *sql.DB
type Store struct {
	conn      *sql.DB
	dialect   Dialect
	opTimeout time.Duration
	now       func() time.Time
}

// New wraps an open connection pool. opTimeout bounds each operation,
// including the wait for a free pooled connection.
func New(conn *sql.DB, dialect Dialect, opTimeout time.Duration) *Store {
	return &Store{
		conn:      conn,
		dialect:   dialect,
		opTimeout: opTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for created_at/updated_at stamps
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// DB returns the underlying database connection
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// rebind rewrites '?' placeholders to $1..$n for Postgres
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
