package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	audit "credreg/pkg/platform/audit"
	txcontext "credreg/pkg/platform/tx"
)

// Store writes telemetry events to the telemetry_events table so operators
// without Kafka still get a durable activity trail.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL telemetry sink.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Write inserts a batch of events in one transaction.
func (s *Store) Write(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.ExecerFrom(ctx, s.db)
		for _, e := range events {
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal telemetry event: %w", err)
			}
			_, err = exec.ExecContext(ctx, `
				INSERT INTO telemetry_events (id, action, outcome, credential_id, batch_id, occurred_at, payload)
				VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
				ON CONFLICT (id) DO NOTHING
			`, e.ID, string(e.Action), string(e.Outcome), e.CredentialID, e.BatchID, e.Timestamp, payload)
			if err != nil {
				return fmt.Errorf("insert telemetry event: %w", err)
			}
		}
		return nil
	})
}

// ListByCredential returns the events recorded for one credential, oldest first.
func (s *Store) ListByCredential(ctx context.Context, credentialID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM telemetry_events
		WHERE credential_id = $1
		ORDER BY occurred_at, id
	`, credentialID)
	if err != nil {
		return nil, fmt.Errorf("list telemetry events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		var e audit.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode telemetry event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
