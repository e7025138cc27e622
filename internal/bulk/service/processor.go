// Package service runs bulk issuance batches over the issuance orchestrator.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"credreg/internal/bulk/models"
	"credreg/internal/issuance"
	"credreg/internal/platform/logger"
	"credreg/internal/platform/metrics"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	audit "credreg/pkg/platform/audit"
	"credreg/pkg/platform/sentinel"
	"credreg/pkg/requestcontext"
)

var tracer = otel.Tracer("credreg/internal/bulk")

// Issuer issues one credential.
type Issuer interface {
	Issue(ctx context.Context, req issuance.Request) (*issuance.Result, error)
}

// BatchStore keeps published results for later lookup.
type BatchStore interface {
	Save(ctx context.Context, result models.Result) error
	Get(ctx context.Context, batchID id.BatchID) (*models.Result, error)
}

// Processor drives batches. It owns each batch's per-row state until the
// result is published.
type Processor struct {
	issuer  Issuer
	batches BatchStore

	maxConcurrency int
	maxRecords     int
	now            func() time.Time
	logger         *slog.Logger
	audit          audit.Emitter
	metrics        *metrics.Metrics
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(p *Processor) {
		p.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithMaxConcurrency bounds in-flight issuances in parallel mode.
func WithMaxConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxConcurrency = n
		}
	}
}

// WithMaxRecords caps the rows accepted per batch.
func WithMaxRecords(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxRecords = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func New(issuer Issuer, batches BatchStore, opts ...Option) *Processor {
	p := &Processor{
		issuer:         issuer,
		batches:        batches,
		maxConcurrency: 4,
		maxRecords:     1000,
		now:            time.Now,
		logger:         logger.Discard(),
		audit:          audit.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessBatch issues every row in input order and returns the published
// result. Cancelling ctx stops new rows from starting; rows already in
// flight finish and committed credentials stay committed. Row failures are
// reported in the result, not as an error.
func (p *Processor) ProcessBatch(ctx context.Context, batch models.Batch) (*models.Result, error) {
	if err := p.validate(batch); err != nil {
		return nil, err
	}

	result := &models.Result{
		BatchID:   id.NewBatchID(),
		BatchName: batch.Name,
		SchemaID:  batch.SchemaID,
		IssuerDID: batch.IssuerDID,
		Results:   make([]models.Record, len(batch.Records)),
		StartedAt: p.now().UTC(),
	}
	for i, in := range batch.Records {
		result.Results[i] = models.Record{
			Index:        i,
			RecipientDID: in.RecipientDID,
			Claims:       in.Claims,
			Status:       models.StatusPending,
		}
	}

	ctx, span := tracer.Start(ctx, "bulk.ProcessBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch_id", result.BatchID.String()),
		attribute.Int("records", len(batch.Records)),
		attribute.Bool("parallel", batch.Options.ParallelProcessing),
	)
	p.logger.InfoContext(ctx, "bulk batch started",
		"request_id", requestcontext.RequestID(ctx),
		"batch_id", result.BatchID,
		"records", len(batch.Records),
		"parallel", batch.Options.ParallelProcessing,
	)

	if batch.Options.ParallelProcessing {
		result.Cancelled = p.runParallel(ctx, batch, result.Results)
	} else {
		result.Cancelled = p.runSequential(ctx, batch, result.Results)
	}

	result.CompletedAt = p.now().UTC()
	if result.CompletedAt.Before(result.StartedAt) {
		result.CompletedAt = result.StartedAt
	}
	result.Tally()
	p.publish(ctx, result)
	return result, nil
}

func (p *Processor) validate(batch models.Batch) error {
	if len(batch.Records) == 0 {
		return dErrors.New(dErrors.CodeValidation, "records must not be empty")
	}
	if len(batch.Records) > p.maxRecords {
		return dErrors.New(dErrors.CodeValidation, "too many records in batch")
	}
	if _, err := id.ParseDID(batch.IssuerDID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid issuerDid")
	}
	if _, err := id.ParseSchemaID(batch.SchemaID); err != nil {
		return err
	}
	if batch.Options.DelayBetweenRequests < 0 {
		return dErrors.New(dErrors.CodeValidation, "delayBetweenRequests must not be negative")
	}
	return nil
}

// runSequential awaits row i, then the configured delay, before row i+1.
func (p *Processor) runSequential(ctx context.Context, batch models.Batch, rows []models.Record) (cancelled bool) {
	delay := batch.Options.DelayBetweenRequests
	for i := range rows {
		if i > 0 && delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if ctx.Err() != nil {
			return true
		}
		if !p.issueRow(ctx, batch, &rows[i]) && batch.Options.StopOnFailure {
			return false
		}
	}
	return false
}

// runParallel dispatches rows in input order with at most maxConcurrency in
// flight, spaced by the delay when one is set. Each goroutine writes only
// its own row.
func (p *Processor) runParallel(ctx context.Context, batch models.Batch, rows []models.Record) (cancelled bool) {
	var limiter *rate.Limiter
	if d := batch.Options.DelayBetweenRequests; d > 0 {
		limiter = rate.NewLimiter(rate.Every(d), 1)
	}

	var (
		g       errgroup.Group
		stopped atomic.Bool
	)
	g.SetLimit(p.maxConcurrency)
	for i := range rows {
		if stopped.Load() {
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				cancelled = ctx.Err() != nil
				break
			}
		}
		row := &rows[i]
		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			if !p.issueRow(ctx, batch, row) && batch.Options.StopOnFailure {
				stopped.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return cancelled
}

// issueRow issues one row and records its terminal status. An in-flight
// issuance is not interrupted by batch cancellation.
func (p *Processor) issueRow(ctx context.Context, batch models.Batch, row *models.Record) bool {
	rowCtx := requestcontext.WithTime(context.WithoutCancel(ctx), p.now())
	issued, err := p.issuer.Issue(rowCtx, issuance.Request{
		SchemaID:     batch.SchemaID,
		IssuerDID:    batch.IssuerDID,
		RecipientDID: row.RecipientDID,
		Claims:       row.Claims,
	})
	if err != nil {
		row.Status = models.StatusFailed
		row.Error = err.Error()
		trace.SpanFromContext(ctx).AddEvent("record failed", trace.WithAttributes(
			attribute.Int("index", row.Index),
			attribute.String("code", string(dErrors.CodeOf(err))),
		))
		return false
	}
	credentialID := issued.Record.ID
	issuedAt := issued.Record.IssuedAt
	row.Status = models.StatusIssued
	row.CredentialID = &credentialID
	row.IssuedAt = &issuedAt
	return true
}

func (p *Processor) publish(ctx context.Context, result *models.Result) {
	p.metrics.AddBulkRecords(string(models.StatusIssued), result.Successful)
	p.metrics.AddBulkRecords(string(models.StatusFailed), result.Failed)
	p.metrics.AddBulkRecords(string(models.StatusPending), result.Pending)
	p.metrics.ObserveBulkBatch(result.CompletedAt.Sub(result.StartedAt))

	if err := p.batches.Save(context.WithoutCancel(ctx), *result); err != nil {
		p.logger.ErrorContext(ctx, "failed to store batch result",
			"request_id", requestcontext.RequestID(ctx),
			"batch_id", result.BatchID,
			"error", err,
		)
	}

	outcome := audit.OutcomeSuccess
	if result.Failed > 0 || result.Pending > 0 {
		outcome = audit.OutcomeFailure
	}
	p.audit.Emit(audit.Event{
		Action:    audit.ActionBatchCompleted,
		Outcome:   outcome,
		Timestamp: result.CompletedAt,
		SchemaID:  result.SchemaID,
		IssuerDID: result.IssuerDID,
		BatchID:   result.BatchID.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
	p.logger.InfoContext(ctx, "bulk batch completed",
		"request_id", requestcontext.RequestID(ctx),
		"batch_id", result.BatchID,
		"successful", result.Successful,
		"failed", result.Failed,
		"pending", result.Pending,
		"cancelled", result.Cancelled,
	)
}

// Result returns a published batch result.
func (p *Processor) Result(ctx context.Context, batchID id.BatchID) (*models.Result, error) {
	result, err := p.batches.Get(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load batch")
	}
	return result, nil
}
