// Package postgres persists schemas and their history in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"credreg/internal/platform/postgres"
	"credreg/internal/schema/models"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
	txcontext "credreg/pkg/platform/tx"
)

// PostgresStore keeps one row per schema in credential_schemas and an
// append-only log in credential_schema_history.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, schema models.Schema) error {
	fields, err := json.Marshal(schema.Fields)
	if err != nil {
		return fmt.Errorf("marshal schema fields: %w", err)
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.ExecerFrom(ctx, s.db)
		_, err := exec.ExecContext(ctx, `
			INSERT INTO credential_schemas (id, name, description, version, fields, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, string(schema.ID), schema.Name, schema.Description, schema.Version, fields, schema.IsActive, schema.CreatedAt, schema.UpdatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert schema: %w", err)
		}
		return appendHistory(ctx, exec, models.HistoryEntry{
			SchemaID:   schema.ID,
			Action:     models.HistoryPublished,
			Version:    schema.Version,
			IsActive:   schema.IsActive,
			Snapshot:   schema,
			RecordedAt: schema.CreatedAt,
		})
	})
}

func (s *PostgresStore) Get(ctx context.Context, schemaID id.SchemaID) (*models.Schema, error) {
	row := txcontext.ExecerFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, name, description, version, fields, is_active, created_at, updated_at
		FROM credential_schemas WHERE id = $1
	`, string(schemaID))
	schema, err := scanSchema(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get schema: %w", err)
	}
	return schema, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Schema, error) {
	rows, err := txcontext.ExecerFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, name, description, version, fields, is_active, created_at, updated_at
		FROM credential_schemas ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var out []models.Schema
	for rows.Next() {
		schema, err := scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		out = append(out, *schema)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetActive(ctx context.Context, schemaID id.SchemaID, active bool, entry models.HistoryEntry) (*models.Schema, bool, error) {
	var (
		result  *models.Schema
		changed bool
	)
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.ExecerFrom(ctx, s.db)
		row := exec.QueryRowContext(ctx, `
			SELECT id, name, description, version, fields, is_active, created_at, updated_at
			FROM credential_schemas WHERE id = $1 FOR UPDATE
		`, string(schemaID))
		schema, err := scanSchema(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock schema: %w", err)
		}
		result = schema
		if schema.IsActive == active {
			return nil
		}

		if _, err := exec.ExecContext(ctx, `
			UPDATE credential_schemas SET is_active = $2, updated_at = $3 WHERE id = $1
		`, string(schemaID), active, entry.RecordedAt); err != nil {
			return fmt.Errorf("update schema: %w", err)
		}
		schema.IsActive = active
		schema.UpdatedAt = entry.RecordedAt
		changed = true

		entry.SchemaID = schemaID
		entry.Version = schema.Version
		entry.IsActive = active
		entry.Snapshot = *schema
		return appendHistory(ctx, exec, entry)
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (s *PostgresStore) History(ctx context.Context, schemaID id.SchemaID) ([]models.HistoryEntry, error) {
	rows, err := txcontext.ExecerFrom(ctx, s.db).QueryContext(ctx, `
		SELECT action, version, is_active, snapshot, recorded_at
		FROM credential_schema_history WHERE schema_id = $1 ORDER BY seq
	`, string(schemaID))
	if err != nil {
		return nil, fmt.Errorf("list schema history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var (
			entry    models.HistoryEntry
			action   string
			snapshot []byte
		)
		if err := rows.Scan(&action, &entry.Version, &entry.IsActive, &snapshot, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan schema history: %w", err)
		}
		if err := json.Unmarshal(snapshot, &entry.Snapshot); err != nil {
			return nil, fmt.Errorf("decode schema snapshot: %w", err)
		}
		entry.SchemaID = schemaID
		entry.Action = models.HistoryAction(action)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return out, nil
}

func appendHistory(ctx context.Context, exec txcontext.Execer, entry models.HistoryEntry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal schema snapshot: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO credential_schema_history (schema_id, action, version, is_active, snapshot, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(entry.SchemaID), string(entry.Action), entry.Version, entry.IsActive, snapshot, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert schema history: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchema(row scanner) (*models.Schema, error) {
	var (
		schema    models.Schema
		schemaID  string
		fields    []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&schemaID, &schema.Name, &schema.Description, &schema.Version, &fields, &schema.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &schema.Fields); err != nil {
		return nil, fmt.Errorf("decode schema fields: %w", err)
	}
	schema.ID = id.SchemaID(schemaID)
	schema.CreatedAt = createdAt
	schema.UpdatedAt = updatedAt
	// Patterns are not serialized in compiled form.
	if err := schema.Prepare(); err != nil {
		return nil, fmt.Errorf("stored schema %s is invalid: %w", schemaID, err)
	}
	return &schema, nil
}
