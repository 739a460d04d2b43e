// Package sqlite opens the embedded single-file conversation store.
package sqlite

import (
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/sqlstore"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dsnParams = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"

// Open opens (or creates) a SQLite database at the given path and applies the schema.
func Open(ctx context.Context, dbPath string, opTimeout time.Duration) (*sqlstore.Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// SQLite serialises writers; one connection avoids SQLITE_BUSY inside transactions
	conn.SetMaxOpenConns(1)

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.WithField("path", dbPath).Info("Opened SQLite conversation store")

	return sqlstore.New(conn, sqlstore.SQLite, opTimeout), nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
