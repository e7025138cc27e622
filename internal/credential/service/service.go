// Package service answers read queries over committed credentials: lookup,
// recipient listings and issuer statistics.
package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"credreg/internal/credential/models"
	"credreg/internal/platform/logger"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/platform/sentinel"
)

// Store is the credential store contract shared by the memory, PostgreSQL
// and Redis backends.
type Store interface {
	Put(ctx context.Context, record models.Record) error
	Get(ctx context.Context, credentialID id.CredentialID) (*models.Record, error)
	ListByRecipient(ctx context.Context, recipient id.DID, filter models.ListFilter) ([]models.Record, error)
	ListByIssuer(ctx context.Context, issuer id.DID) ([]models.Record, error)
	SetStatus(ctx context.Context, credentialID id.CredentialID, status models.Status) (*models.Record, bool, error)
	Health(ctx context.Context) error
}

// Service reads credentials on behalf of the HTTP layer.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a credential by id.
func (s *Service) Get(ctx context.Context, credentialID id.CredentialID) (*models.Record, error) {
	record, err := s.store.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return record, nil
}

// ListByRecipient returns the recipient's credentials oldest first.
func (s *Service) ListByRecipient(ctx context.Context, recipient id.DID, filter models.ListFilter) ([]models.Record, error) {
	records, err := s.store.ListByRecipient(ctx, recipient, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return records, nil
}

// IssuerStats counts an issuer's credentials by status and ranks the schemas
// it issues most.
func (s *Service) IssuerStats(ctx context.Context, issuer id.DID) (*models.IssuerStats, error) {
	records, err := s.store.ListByIssuer(ctx, issuer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuer credentials")
	}
	return Summarize(issuer, records), nil
}

// Summarize builds issuer statistics from a listing. Schemas with equal
// counts are ordered by id.
func Summarize(issuer id.DID, records []models.Record) *models.IssuerStats {
	stats := &models.IssuerStats{IssuerDID: issuer, PopularSchemas: []models.SchemaCount{}}
	counts := make(map[id.SchemaID]int)
	for _, r := range records {
		stats.TotalIssued++
		if r.IsActive() {
			stats.ActiveCredentials++
		} else {
			stats.RevokedCredentials++
		}
		counts[r.SchemaID]++
	}
	for schemaID, n := range counts {
		stats.PopularSchemas = append(stats.PopularSchemas, models.SchemaCount{SchemaID: schemaID, Count: n})
	}
	slices.SortFunc(stats.PopularSchemas, func(a, b models.SchemaCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.SchemaID, b.SchemaID)
	})
	return stats
}

// Health pings the configured backend.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
