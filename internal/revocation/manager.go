// Package revocation revokes credentials on behalf of their issuer.
package revocation

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	credmodels "credreg/internal/credential/models"
	"credreg/internal/platform/logger"
	"credreg/internal/platform/metrics"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/sentinel"
	"credreg/pkg/requestcontext"
)

var tracer = otel.Tracer("credreg/internal/revocation")

type CredentialStore interface {
	Get(ctx context.Context, credentialID id.CredentialID) (*credmodels.Record, error)
	SetStatus(ctx context.Context, credentialID id.CredentialID, status credmodels.Status) (*credmodels.Record, bool, error)
}

// Manager enforces that only the issuing DID revokes a credential.
type Manager struct {
	store   CredentialStore
	logger  *slog.Logger
	audit   audit.Emitter
	metrics *metrics.Metrics
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(m *Manager) {
		m.audit = publisher
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func New(store CredentialStore, opts ...Option) *Manager {
	m := &Manager{store: store, logger: logger.Discard(), audit: audit.Nop{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Revoke marks the credential revoked. Revoking an already revoked
// credential succeeds without change. A requester other than the issuer gets
// a forbidden error.
func (m *Manager) Revoke(ctx context.Context, credentialID id.CredentialID, requester id.DID) (*credmodels.Record, error) {
	ctx, span := tracer.Start(ctx, "revocation.Revoke")
	defer span.End()
	span.SetAttributes(attribute.String("credential_id", credentialID.String()))

	record, err := m.store.Get(ctx, credentialID)
	if err != nil {
		return nil, m.storeError(err)
	}
	if record.IssuerDID != requester {
		m.metrics.IncrementRevocation("denied")
		m.audit.Emit(audit.Event{
			Action:       audit.ActionRevocationDenied,
			Outcome:      audit.OutcomeDenied,
			CredentialID: credentialID.String(),
			IssuerDID:    requester.String(),
			Reason:       "requester is not the issuer",
			RequestID:    requestcontext.RequestID(ctx),
		})
		m.logger.WarnContext(ctx, "revocation denied",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", credentialID,
			"requester_did", requester,
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "only the issuer may revoke this credential")
	}

	updated, changed, err := m.store.SetStatus(ctx, credentialID, credmodels.StatusRevoked)
	if err != nil {
		return nil, m.storeError(err)
	}
	span.SetAttributes(attribute.Bool("changed", changed))
	if !changed {
		m.metrics.IncrementRevocation("already_revoked")
		return updated, nil
	}

	m.metrics.IncrementRevocation("revoked")
	m.audit.Emit(audit.Event{
		Action:       audit.ActionCredentialRevoked,
		Outcome:      audit.OutcomeSuccess,
		CredentialID: credentialID.String(),
		SchemaID:     updated.SchemaID.String(),
		IssuerDID:    updated.IssuerDID.String(),
		RecipientDID: updated.RecipientDID.String(),
		RequestID:    requestcontext.RequestID(ctx),
	})
	m.logger.InfoContext(ctx, "credential revoked",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", credentialID,
	)
	return updated, nil
}

func (m *Manager) storeError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "credential status cannot change")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
	}
}
