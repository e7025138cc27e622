// Package audit carries best-effort telemetry notifications about registry
// activity. Emission never blocks the caller and a failed delivery never
// changes the outcome of the operation that produced the event.
package audit

import (
	"context"
	"time"
)

// Action names the registry operation an event describes.
type Action string

const (
	ActionCredentialIssued   Action = "credential_issued"
	ActionIssuanceFailed     Action = "issuance_failed"
	ActionCredentialVerified Action = "credential_verified"
	ActionCredentialRevoked  Action = "credential_revoked"
	ActionRevocationDenied   Action = "revocation_denied"
	ActionBatchCompleted     Action = "batch_completed"
	ActionSchemaPublished    Action = "schema_published"
	ActionSchemaActivated    Action = "schema_activated"
	ActionSchemaDeactivated  Action = "schema_deactivated"
)

// Outcome summarizes how the operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is emitted from domain logic to capture key actions. It is
// transport-agnostic so sinks can fan out.
type Event struct {
	ID           string    `json:"id"`
	Action       Action    `json:"action"`
	Outcome      Outcome   `json:"outcome"`
	Timestamp    time.Time `json:"timestamp"`
	CredentialID string    `json:"credentialId,omitempty"`
	SchemaID     string    `json:"schemaId,omitempty"`
	IssuerDID    string    `json:"issuerDid,omitempty"`
	RecipientDID string    `json:"recipientDid,omitempty"`
	BatchID      string    `json:"batchId,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
}

// Sink persists or forwards a batch of events.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(event Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(Event) {}
