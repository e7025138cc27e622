// Package service implements the schema registry: publishing schemas,
// toggling their availability and validating claim payloads against them.
package service

import (
	"context"
	"errors"
	"log/slog"

	"credreg/internal/platform/logger"
	"credreg/internal/schema/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/sentinel"
	"credreg/pkg/requestcontext"
)

// Store persists schemas and their history. Create records a "published"
// history entry; SetActive records an entry only when the flag changes.
type Store interface {
	Create(ctx context.Context, schema models.Schema) error
	Get(ctx context.Context, schemaID id.SchemaID) (*models.Schema, error)
	List(ctx context.Context) ([]models.Schema, error)
	SetActive(ctx context.Context, schemaID id.SchemaID, active bool, entry models.HistoryEntry) (*models.Schema, bool, error)
	History(ctx context.Context, schemaID id.SchemaID) ([]models.HistoryEntry, error)
}

// Registry is the schema registry service.
type Registry struct {
	store  Store
	logger *slog.Logger
	audit  audit.Emitter
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(r *Registry) {
		r.audit = publisher
	}
}

// New constructs a Registry.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, logger: logger.Discard(), audit: audit.Nop{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register publishes a new schema. Fails with a conflict if the id exists.
func (r *Registry) Register(ctx context.Context, schema models.Schema) (*models.Schema, error) {
	if err := schema.Prepare(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	schema.CreatedAt = now
	schema.UpdatedAt = now

	if err := r.store.Create(ctx, schema); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "schema "+string(schema.ID)+" already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store schema")
	}

	r.logger.InfoContext(ctx, "schema published",
		"request_id", requestcontext.RequestID(ctx),
		"schema_id", schema.ID,
		"version", schema.Version,
	)
	r.audit.Emit(audit.Event{
		Action:    audit.ActionSchemaPublished,
		Outcome:   audit.OutcomeSuccess,
		SchemaID:  string(schema.ID),
		RequestID: requestcontext.RequestID(ctx),
	})
	out := schema.Clone()
	return &out, nil
}

// Get returns an active schema. Unknown and inactive schemas are both not found.
func (r *Registry) Get(ctx context.Context, schemaID id.SchemaID) (*models.Schema, error) {
	schema, err := r.lookup(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if !schema.IsActive {
		return nil, notFound(schemaID)
	}
	return schema, nil
}

// Describe returns a schema regardless of its active flag, for administration.
func (r *Registry) Describe(ctx context.Context, schemaID id.SchemaID) (*models.Schema, error) {
	return r.lookup(ctx, schemaID)
}

func (r *Registry) lookup(ctx context.Context, schemaID id.SchemaID) (*models.Schema, error) {
	schema, err := r.store.Get(ctx, schemaID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound(schemaID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load schema")
	}
	return schema, nil
}

// List returns schemas ordered by id. Inactive schemas are included only
// when includeInactive is set.
func (r *Registry) List(ctx context.Context, includeInactive bool) ([]models.Schema, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list schemas")
	}
	if includeInactive {
		return all, nil
	}
	active := make([]models.Schema, 0, len(all))
	for _, s := range all {
		if s.IsActive {
			active = append(active, s)
		}
	}
	return active, nil
}

// Validate checks claims against an active schema and reports every
// violation in one schema validation error.
func (r *Registry) Validate(ctx context.Context, schemaID id.SchemaID, claims models.Claims) error {
	schema, err := r.Get(ctx, schemaID)
	if err != nil {
		return err
	}
	return models.ValidationError(schema.Validate(claims))
}

// SetActive toggles a schema's availability for issuance. Setting the flag
// to its current value is a no-op.
func (r *Registry) SetActive(ctx context.Context, schemaID id.SchemaID, active bool) (*models.Schema, error) {
	action := models.HistoryDeactivated
	auditAction := audit.ActionSchemaDeactivated
	if active {
		action = models.HistoryActivated
		auditAction = audit.ActionSchemaActivated
	}
	entry := models.HistoryEntry{
		SchemaID:   schemaID,
		Action:     action,
		IsActive:   active,
		RecordedAt: requestcontext.Now(ctx),
	}

	schema, changed, err := r.store.SetActive(ctx, schemaID, active, entry)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound(schemaID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update schema")
	}
	if changed {
		r.logger.InfoContext(ctx, "schema availability changed",
			"request_id", requestcontext.RequestID(ctx),
			"schema_id", schemaID,
			"is_active", active,
		)
		r.audit.Emit(audit.Event{
			Action:    auditAction,
			Outcome:   audit.OutcomeSuccess,
			SchemaID:  string(schemaID),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return schema, nil
}

// History returns the change log for a schema, oldest first.
func (r *Registry) History(ctx context.Context, schemaID id.SchemaID) ([]models.HistoryEntry, error) {
	if _, err := r.lookup(ctx, schemaID); err != nil {
		return nil, err
	}
	entries, err := r.store.History(ctx, schemaID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load schema history")
	}
	return entries, nil
}

// Seed publishes schemas that are not yet registered. Existing ids are left
// untouched so seeding is safe on every start.
func (r *Registry) Seed(ctx context.Context, schemas []models.Schema) error {
	for _, s := range schemas {
		_, err := r.Register(ctx, s)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeConflict) {
			return err
		}
	}
	return nil
}

func notFound(schemaID id.SchemaID) error {
	return dErrors.New(dErrors.CodeNotFound, "schema "+string(schemaID)+" not found")
}
