// Package postgres persists credential records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"credreg/internal/credential/models"
	"credreg/internal/platform/postgres"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
	txcontext "credreg/pkg/platform/tx"
)

const selectColumns = `id, schema_id, issuer_did, recipient_did, claims, issued_at, status, transaction_reference`

// PostgresStore keeps one row per credential. The seq column records commit
// order, which listings follow.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, record models.Record) error {
	claims, err := json.Marshal(record.Claims)
	if err != nil {
		return fmt.Errorf("marshal credential claims: %w", err)
	}
	var txRef sql.NullString
	if record.TransactionReference != "" {
		txRef = sql.NullString{String: record.TransactionReference, Valid: true}
	}
	_, err = txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO credentials (id, schema_id, issuer_did, recipient_did, claims, issued_at, status, transaction_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(record.ID), string(record.SchemaID), string(record.IssuerDID), string(record.RecipientDID),
		claims, record.IssuedAt, string(record.Status), txRef)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, credentialID id.CredentialID) (*models.Record, error) {
	row := txcontext.ExecerFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE id = $1`, uuid.UUID(credentialID))
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipient id.DID, filter models.ListFilter) ([]models.Record, error) {
	statuses := []string{string(models.StatusActive)}
	if filter.IncludeRevoked {
		statuses = append(statuses, string(models.StatusRevoked))
	}
	return s.list(ctx, `
		SELECT `+selectColumns+` FROM credentials
		WHERE recipient_did = $1 AND status = ANY($2)
		ORDER BY seq
	`, string(recipient), pq.Array(statuses))
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer id.DID) ([]models.Record, error) {
	return s.list(ctx, `
		SELECT `+selectColumns+` FROM credentials
		WHERE issuer_did = $1
		ORDER BY seq
	`, string(issuer))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := txcontext.ExecerFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := []models.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

// SetStatus locks the row, checks the lifecycle transition and updates it.
func (s *PostgresStore) SetStatus(ctx context.Context, credentialID id.CredentialID, status models.Status) (*models.Record, bool, error) {
	var (
		result  *models.Record
		changed bool
	)
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.ExecerFrom(ctx, s.db)
		row := exec.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM credentials WHERE id = $1 FOR UPDATE`, uuid.UUID(credentialID))
		record, err := scanRecord(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock credential: %w", err)
		}
		if !record.Status.CanTransitionTo(status) {
			return sentinel.ErrInvalidState
		}
		result = record
		if record.Status == status {
			return nil
		}
		if _, err := exec.ExecContext(ctx,
			`UPDATE credentials SET status = $2 WHERE id = $1`, uuid.UUID(credentialID), string(status)); err != nil {
			return fmt.Errorf("update credential status: %w", err)
		}
		record.Status = status
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		record       models.Record
		credentialID uuid.UUID
		schemaID     string
		issuer       string
		recipient    string
		claims       []byte
		status       string
		txRef        sql.NullString
	)
	if err := row.Scan(&credentialID, &schemaID, &issuer, &recipient, &claims, &record.IssuedAt, &status, &txRef); err != nil {
		return nil, err
	}
	parsed, err := models.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("credential %s: %w", credentialID, err)
	}
	if err := json.Unmarshal(claims, &record.Claims); err != nil {
		return nil, fmt.Errorf("unmarshal credential claims: %w", err)
	}
	record.ID = id.CredentialID(credentialID)
	record.SchemaID = id.SchemaID(schemaID)
	record.IssuerDID = id.DID(issuer)
	record.RecipientDID = id.DID(recipient)
	record.IssuedAt = record.IssuedAt.UTC()
	record.Status = parsed
	record.TransactionReference = txRef.String
	return &record, nil
}
