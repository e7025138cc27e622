// Package postgres opens the PostgreSQL pool and applies the registry schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"credreg/internal/platform/config"
)

// Open connects to PostgreSQL through the pgx database/sql driver and
// verifies the connection. Returns nil when no URL is configured.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Migrate creates the registry tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS credential_schemas (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		version     TEXT NOT NULL,
		fields      JSONB NOT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credential_schema_history (
		seq         BIGSERIAL PRIMARY KEY,
		schema_id   TEXT NOT NULL REFERENCES credential_schemas(id),
		action      TEXT NOT NULL,
		version     TEXT NOT NULL,
		is_active   BOOLEAN NOT NULL,
		snapshot    JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schema_history_schema ON credential_schema_history (schema_id, seq)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		seq                   BIGSERIAL UNIQUE,
		id                    UUID PRIMARY KEY,
		schema_id             TEXT NOT NULL,
		issuer_did            TEXT NOT NULL,
		recipient_did         TEXT NOT NULL,
		claims                JSONB NOT NULL,
		issued_at             TIMESTAMPTZ NOT NULL,
		status                TEXT NOT NULL,
		transaction_reference TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_recipient ON credentials (recipient_did, issued_at, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_issuer ON credentials (issuer_did)`,
	`CREATE TABLE IF NOT EXISTS telemetry_events (
		id            TEXT PRIMARY KEY,
		action        TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		credential_id TEXT,
		batch_id      TEXT,
		occurred_at   TIMESTAMPTZ NOT NULL,
		payload       JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_credential ON telemetry_events (credential_id, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS bulk_batches (
		id           UUID PRIMARY KEY,
		schema_id    TEXT NOT NULL,
		issuer_did   TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		result       JSONB NOT NULL
	)`,
}
