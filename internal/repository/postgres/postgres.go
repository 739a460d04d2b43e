package postgres

import (
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/sqlstore"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Open connects to PostgreSQL, bounds the connection pool and applies pending migrations
func Open(ctx context.Context, dbConfig config.DatabaseConfig) (*sqlstore.Store, error) {
	conn, err := Connect(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	if err = RunMigrations(conn, dbConfig.MigrationsPath); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.Info("Migrations completed successfully")

	return sqlstore.New(conn, sqlstore.Postgres, dbConfig.OpTimeout), nil
}

// Connect opens a pooled connection and verifies it with a ping
func Connect(ctx context.Context, dbConfig config.DatabaseConfig) (*sql.DB, error) {
	logger.Log.WithFields(logrus.Fields{
		"host":     dbConfig.Host,
		"port":     dbConfig.Port,
		"database": dbConfig.Name,
	}).Info("Connecting to PostgreSQL")

	conn, err := sql.Open("postgres", dbConfig.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	conn.SetMaxOpenConns(dbConfig.MaxOpenConns)
	conn.SetMaxIdleConns(dbConfig.MaxIdleConns)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, dbConfig.OpTimeout)
	defer cancel()

	// Test the connection
	if err = conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	logger.Log.Info("Successfully connected to PostgreSQL")
	return conn, nil
}

// RunMigrations runs database migrations using golang-migrate
func RunMigrations(conn *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("error reading migration version: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("Database migrations applied successfully")
	return nil
}
