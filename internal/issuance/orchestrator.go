// Package issuance issues single credentials: it validates the request,
// has the cryptography provider sign the credential, optionally anchors it
// on the ledger, and commits the record. A failure at any step leaves the
// store untouched.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	credmodels "credreg/internal/credential/models"
	"credreg/internal/platform/logger"
	"credreg/internal/platform/metrics"
	"credreg/internal/providers"
	schemamodels "credreg/internal/schema/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/sentinel"
	"credreg/pkg/requestcontext"
)

var tracer = otel.Tracer("credreg/internal/issuance")

// SchemaRegistry resolves active schemas.
type SchemaRegistry interface {
	Get(ctx context.Context, schemaID id.SchemaID) (*schemamodels.Schema, error)
}

// CredentialStore commits new records.
type CredentialStore interface {
	Put(ctx context.Context, record credmodels.Record) error
}

// Request asks for one credential. DIDs and the schema id arrive as raw
// strings and are checked by Issue.
type Request struct {
	SchemaID     string
	IssuerDID    string
	RecipientDID string
	Claims       map[string]any
}

// Result is a committed credential plus the provider's proof reference, if
// it returned one.
type Result struct {
	Record         credmodels.Record
	ProofReference string
}

// Orchestrator is the issuance service.
type Orchestrator struct {
	schemas  SchemaRegistry
	store    CredentialStore
	sessions providers.SessionProvider
	crypto   providers.CryptoProvider
	ledger   providers.Ledger

	timeout time.Duration
	newID   func() id.CredentialID
	logger  *slog.Logger
	audit   audit.Emitter
	metrics *metrics.Metrics
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(o *Orchestrator) {
		o.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLedger enables anchoring every issuance on the ledger before commit.
func WithLedger(ledger providers.Ledger) Option {
	return func(o *Orchestrator) {
		o.ledger = ledger
	}
}

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithIDGenerator replaces the random credential id generator.
func WithIDGenerator(fn func() id.CredentialID) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// New wires an orchestrator from initialized collaborators.
func New(schemas SchemaRegistry, store CredentialStore, sessions providers.SessionProvider, crypto providers.CryptoProvider, opts ...Option) (*Orchestrator, error) {
	if schemas == nil || store == nil || sessions == nil || crypto == nil {
		return nil, errors.New("issuance: schema registry, credential store, session provider and crypto provider are required")
	}
	o := &Orchestrator{
		schemas:  schemas,
		store:    store,
		sessions: sessions,
		crypto:   crypto,
		timeout:  5 * time.Second,
		newID:    id.NewCredentialID,
		logger:   logger.Discard(),
		audit:    audit.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Issue runs one issuance. Schema validation errors are returned unchanged;
// provider failures and timeouts become external service errors.
func (o *Orchestrator) Issue(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "issuance.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("schema_id", req.SchemaID))

	result, err := o.issue(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		o.metrics.IncrementIssuance(req.SchemaID, "failure")
		o.audit.Emit(audit.Event{
			Action:       audit.ActionIssuanceFailed,
			Outcome:      audit.OutcomeFailure,
			SchemaID:     req.SchemaID,
			IssuerDID:    req.IssuerDID,
			RecipientDID: req.RecipientDID,
			Reason:       string(dErrors.CodeOf(err)),
			RequestID:    requestcontext.RequestID(ctx),
		})
		return nil, err
	}

	record := result.Record
	span.SetAttributes(attribute.String("credential_id", record.ID.String()))
	o.metrics.IncrementIssuance(req.SchemaID, "success")
	o.audit.Emit(audit.Event{
		Action:       audit.ActionCredentialIssued,
		Outcome:      audit.OutcomeSuccess,
		Timestamp:    record.IssuedAt,
		CredentialID: record.ID.String(),
		SchemaID:     record.SchemaID.String(),
		IssuerDID:    record.IssuerDID.String(),
		RecipientDID: record.RecipientDID.String(),
		RequestID:    requestcontext.RequestID(ctx),
	})
	o.logger.InfoContext(ctx, "credential issued",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", record.ID,
		"schema_id", record.SchemaID,
		"issuer_did", record.IssuerDID,
	)
	return result, nil
}

func (o *Orchestrator) issue(ctx context.Context, req Request) (*Result, error) {
	recipient, err := id.ParseDID(req.RecipientDID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid recipientDid")
	}
	issuer, err := id.ParseDID(req.IssuerDID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid issuerDid")
	}
	schemaID, err := id.ParseSchemaID(req.SchemaID)
	if err != nil {
		return nil, err
	}

	schema, err := o.schemas.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	claims := map[string]any(credmodels.Claims(req.Claims).Clone())
	if claims == nil {
		claims = map[string]any{}
	}
	if err := schemamodels.ValidationError(schema.Validate(claims)); err != nil {
		return nil, err
	}

	credentialID := o.newID()
	token, err := providers.Call(ctx, o.timeout, "identity", "session", func(ctx context.Context) (string, error) {
		return providers.AccessToken(ctx, o.sessions)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "identity provider: obtain session")
	}

	start := time.Now()
	issued, err := providers.Call(ctx, o.timeout, "crypto", "issue_credential", func(ctx context.Context) (*providers.IssueResult, error) {
		return o.crypto.IssueCredential(ctx, token, providers.IssueRequest{
			CredentialID: credentialID,
			SchemaID:     schemaID,
			IssuerDID:    issuer,
			RecipientDID: recipient,
			Claims:       credmodels.Claims(claims).Clone(),
		})
	})
	o.metrics.ObserveProviderLatency("crypto", "issue_credential", time.Since(start))
	if err != nil {
		o.logger.WarnContext(ctx, "cryptography provider rejected issuance",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", credentialID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "cryptography provider: issue credential")
	}

	record := credmodels.Record{
		ID:           credentialID,
		SchemaID:     schemaID,
		IssuerDID:    issuer,
		RecipientDID: recipient,
		Claims:       credmodels.Claims(claims),
		IssuedAt:     requestcontext.Now(ctx).UTC(),
		Status:       credmodels.StatusActive,
	}

	if o.ledger != nil {
		txRef, err := o.anchor(ctx, schema, record)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "ledger: record issuance")
		}
		record.TransactionReference = txRef
	}

	// The provider has signed; finish the commit even if the caller goes away.
	if err := o.store.Put(context.WithoutCancel(ctx), record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "credential id already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}

	proof := ""
	if issued != nil {
		proof = issued.ProofReference
	}
	return &Result{Record: record, ProofReference: proof}, nil
}

func (o *Orchestrator) anchor(ctx context.Context, schema *schemamodels.Schema, record credmodels.Record) (string, error) {
	skill := ""
	if field, ok := schema.FirstStringField(); ok {
		if v, present := record.Claims[field]; present {
			skill = fmt.Sprint(v)
		}
	}
	start := time.Now()
	defer func() {
		o.metrics.ObserveProviderLatency("ledger", "record_issuance", time.Since(start))
	}()
	return providers.Call(ctx, o.timeout, "ledger", "record_issuance", func(ctx context.Context) (string, error) {
		return o.ledger.RecordIssuance(ctx, providers.Anchor{
			RecipientDID: record.RecipientDID,
			IssuerDID:    record.IssuerDID,
			IssuedAt:     record.IssuedAt,
			SubjectID:    record.ID.String(),
			SubjectSkill: skill,
		})
	})
}
