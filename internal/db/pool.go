package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the global database connection pool
var Pool *pgxpool.Pool

var (
	ErrNoDatabase = errors.New("database not available")
	ErrNotFound   = errors.New("record not found")
)

// Init initializes the database connection pool
func Init() error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		// Build from individual environment variables
		host := os.Getenv("DB_HOST")
		port := os.Getenv("DB_PORT")
		user := os.Getenv("DB_USER")
		password := os.Getenv("DB_PASSWORD")
		dbname := os.Getenv("DB_NAME")

		if host != "" && user != "" && dbname != "" {
			if port == "" {
				port = "5432"
			}
			databaseURL = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
				user, password, host, port, dbname)
		} else {
			// No database configured - uploads and stored reports are disabled
			log.Println("No database configuration found - running in analysis-only mode")
			return ErrNoDatabase
		}
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	Pool = pool
	if err := EnsureSchema(ctx); err != nil {
		Pool = nil
		pool.Close()
		return err
	}

	log.Println("Database connection pool initialized successfully")
	return nil
}

// Close closes the database connection pool
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
		log.Println("Database connection pool closed")
	}
}

// Available reports whether a pool is configured
func Available() bool {
	return Pool != nil
}

// EnsureSchema creates the uploads and reports tables if they do not exist
func EnsureSchema(ctx context.Context) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	query := `
		CREATE TABLE IF NOT EXISTS uploads (
			id          uuid PRIMARY KEY,
			format      text NOT NULL,
			raw_data    bytea,
			object_path text,
			rows_parsed integer NOT NULL DEFAULT 0,
			country     text,
			erp         text,
			created_at  timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS reports (
			id             uuid PRIMARY KEY,
			upload_id      uuid REFERENCES uploads(id) ON DELETE CASCADE,
			scores_overall integer NOT NULL,
			readiness      text NOT NULL,
			report_json    jsonb NOT NULL,
			country        text,
			erp            text,
			created_at     timestamptz NOT NULL DEFAULT now(),
			expires_at     timestamptz NOT NULL
		);

		CREATE INDEX IF NOT EXISTS reports_expires_at_idx ON reports (expires_at);
		CREATE INDEX IF NOT EXISTS reports_created_at_idx ON reports (created_at DESC);
	`

	if _, err := Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
