// Package postgres persists completed batch results.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"credreg/internal/bulk/models"
	"credreg/internal/platform/postgres"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
	txcontext "credreg/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, result models.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal batch result: %w", err)
	}
	_, err = txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO bulk_batches (id, schema_id, issuer_did, started_at, completed_at, result)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(result.BatchID), result.SchemaID, result.IssuerDID, result.StartedAt, result.CompletedAt, payload)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert batch result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, batchID id.BatchID) (*models.Result, error) {
	var payload []byte
	err := txcontext.ExecerFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT result FROM bulk_batches WHERE id = $1`, uuid.UUID(batchID)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get batch result: %w", err)
	}
	var result models.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode batch result: %w", err)
	}
	return &result, nil
}
