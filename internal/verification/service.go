// Package verification checks issued credentials: the record must exist and
// be active, and the cryptography provider must accept the proof.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	credmodels "credreg/internal/credential/models"
	"credreg/internal/platform/logger"
	"credreg/internal/platform/metrics"
	"credreg/internal/providers"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/sentinel"
	"credreg/pkg/requestcontext"
)

var tracer = otel.Tracer("credreg/internal/verification")

// Reasons a credential fails verification.
const (
	ReasonRevoked       = "revoked"
	ReasonProofInvalid  = "proof-invalid"
	ReasonProofMismatch = "proof-mismatch"
)

type CredentialReader interface {
	Get(ctx context.Context, credentialID id.CredentialID) (*credmodels.Record, error)
}

// Result is the verification verdict. Reason is set when IsValid is false.
type Result struct {
	IsValid      bool               `json:"isValid"`
	VerifiedAt   time.Time          `json:"verifiedAt"`
	CredentialID id.CredentialID    `json:"credentialId"`
	Reason       string             `json:"reason,omitempty"`
	Credential   *credmodels.Record `json:"credential,omitempty"`
}

type Service struct {
	store    CredentialReader
	sessions providers.SessionProvider
	crypto   providers.CryptoProvider

	timeout time.Duration
	logger  *slog.Logger
	audit   audit.Emitter
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func New(store CredentialReader, sessions providers.SessionProvider, crypto providers.CryptoProvider, opts ...Option) (*Service, error) {
	if store == nil || sessions == nil || crypto == nil {
		return nil, errors.New("verification: credential store, session provider and crypto provider are required")
	}
	s := &Service{
		store:    store,
		sessions: sessions,
		crypto:   crypto,
		timeout:  5 * time.Second,
		logger:   logger.Discard(),
		audit:    audit.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Verify checks a credential against a proof reference. Revoked credentials
// fail without consulting the provider. Provider failures yield an invalid
// result, not an error; only bad input and unknown credentials are errors.
func (s *Service) Verify(ctx context.Context, credentialID id.CredentialID, proofReference string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "verification.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("credential_id", credentialID.String()))

	proofReference = strings.TrimSpace(proofReference)
	if proofReference == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "proofReference is required")
	}

	record, err := s.store.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}

	start := time.Now()
	result := &Result{CredentialID: credentialID, Credential: record}
	if !record.IsActive() {
		result.Reason = ReasonRevoked
	} else {
		result.IsValid, result.Reason = s.checkProof(ctx, credentialID, proofReference)
	}
	result.VerifiedAt = requestcontext.Now(ctx).UTC()

	span.SetAttributes(attribute.Bool("valid", result.IsValid), attribute.String("reason", result.Reason))
	s.metrics.IncrementVerification(result.IsValid, result.Reason)
	s.metrics.ObserveVerificationLatency(time.Since(start))
	outcome := audit.OutcomeSuccess
	if !result.IsValid {
		outcome = audit.OutcomeFailure
	}
	s.audit.Emit(audit.Event{
		Action:       audit.ActionCredentialVerified,
		Outcome:      outcome,
		CredentialID: credentialID.String(),
		SchemaID:     record.SchemaID.String(),
		IssuerDID:    record.IssuerDID.String(),
		RecipientDID: record.RecipientDID.String(),
		Reason:       result.Reason,
		RequestID:    requestcontext.RequestID(ctx),
	})
	s.logger.InfoContext(ctx, "credential verified",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", credentialID,
		"valid", result.IsValid,
		"reason", result.Reason,
	)
	return result, nil
}

func (s *Service) checkProof(ctx context.Context, credentialID id.CredentialID, proofReference string) (bool, string) {
	token, err := providers.Call(ctx, s.timeout, "identity", "session", func(ctx context.Context) (string, error) {
		return providers.AccessToken(ctx, s.sessions)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "verification session unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return false, ReasonProofInvalid
	}

	start := time.Now()
	proof, err := providers.Call(ctx, s.timeout, "crypto", "verify_proof", func(ctx context.Context) (*providers.ProofResult, error) {
		return s.crypto.VerifyProof(ctx, token, proofReference)
	})
	s.metrics.ObserveProviderLatency("crypto", "verify_proof", time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "proof verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", credentialID,
			"error", err,
		)
		return false, ReasonProofInvalid
	}
	if proof == nil || !proof.Success {
		return false, ReasonProofInvalid
	}
	if proof.CredentialID != "" && proof.CredentialID != credentialID.String() {
		return false, ReasonProofMismatch
	}
	return true, ""
}
