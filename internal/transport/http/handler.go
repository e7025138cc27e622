// Package httptransport exposes the registry API over HTTP. Handlers decode
// and validate input, then delegate to the domain services.
package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	bulkmodels "credreg/internal/bulk/models"
	bulkservice "credreg/internal/bulk/service"
	credmodels "credreg/internal/credential/models"
	"credreg/internal/issuance"
	schemamodels "credreg/internal/schema/models"
	"credreg/internal/verification"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/platform/httputil"
	"credreg/pkg/requestcontext"
)

type Issuer interface {
	Issue(ctx context.Context, req issuance.Request) (*issuance.Result, error)
}

type Verifier interface {
	Verify(ctx context.Context, credentialID id.CredentialID, proofReference string) (*verification.Result, error)
}

type Revoker interface {
	Revoke(ctx context.Context, credentialID id.CredentialID, requester id.DID) (*credmodels.Record, error)
}

type BulkProcessor interface {
	ProcessBatch(ctx context.Context, batch bulkmodels.Batch) (*bulkmodels.Result, error)
	Result(ctx context.Context, batchID id.BatchID) (*bulkmodels.Result, error)
}

// SchemaLookup resolves the schema used to coerce CSV columns.
type SchemaLookup interface {
	Get(ctx context.Context, schemaID id.SchemaID) (*schemamodels.Schema, error)
}

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

// Handler serves the issuance, verification, revocation and bulk routes.
type Handler struct {
	issuer   Issuer
	verifier Verifier
	revoker  Revoker
	bulk     BulkProcessor
	schemas  SchemaLookup
	checks   map[string]HealthCheck
	logger   *slog.Logger
}

func NewHandler(issuer Issuer, verifier Verifier, revoker Revoker, bulk BulkProcessor, schemas SchemaLookup, logger *slog.Logger) *Handler {
	return &Handler{
		issuer:   issuer,
		verifier: verifier,
		revoker:  revoker,
		bulk:     bulk,
		schemas:  schemas,
		checks:   map[string]HealthCheck{},
		logger:   logger,
	}
}

// AddHealthCheck registers a named dependency check for GET /health.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// RegisterPublic mounts routes that never change registry state.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Get("/bulkIssue/{batchId}", h.HandleBatchResult)
}

// HandleIssue handles POST /issue.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.issuer.Issue(ctx, req.toIssuance())
	if err != nil {
		h.logFailure(ctx, "issue credential failed", err, "schema_id", req.SchemaID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IssueResponse{
		CredentialID:   result.Record.ID,
		Record:         result.Record,
		ProofReference: result.ProofReference,
	})
}

// HandleVerify handles POST /verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.verifier.Verify(ctx, req.credentialID, req.ProofReference)
	if err != nil {
		h.logFailure(ctx, "verify credential failed", err, "credential_id", req.CredentialID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleRevoke handles POST /revoke. An authenticated caller may only act as
// itself; the body DID is optional when a token is present.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	requester := req.requester
	if caller := requestcontext.CallerDID(ctx); !caller.IsNil() {
		if !requester.IsNil() && requester != caller {
			h.logger.WarnContext(ctx, "revoke requester does not match token",
				"request_id", requestID,
				"credential_id", req.CredentialID,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "requestingIssuerDid does not match the authenticated caller"))
			return
		}
		requester = caller
	}
	if requester.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "requestingIssuerDid is required"))
		return
	}

	record, err := h.revoker.Revoke(ctx, req.credentialID, requester)
	if err != nil {
		h.logFailure(ctx, "revoke credential failed", err, "credential_id", req.CredentialID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RevokeResponse{
		CredentialID: record.ID,
		Status:       record.Status,
		Record:       *record,
	})
}

// HandleBulkIssue handles POST /bulkIssue and answers once the batch has run.
func (h *Handler) HandleBulkIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BulkIssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	h.runBatch(w, r, req.toBatch())
}

// HandleBulkIssueCSV handles POST /bulkIssue/csv?schemaId=&issuerDid=. The
// body is either raw CSV or a multipart form with a "file" part.
func (h *Handler) HandleBulkIssueCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	schemaID, err := id.ParseSchemaID(q.Get("schemaId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if q.Get("issuerDid") == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "issuerDid query parameter is required"))
		return
	}
	schema, err := h.schemas.Get(ctx, schemaID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	body, closeBody, err := csvBody(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer closeBody()

	rows, err := bulkservice.ParseCSV(body, schema)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid csv batch",
			"request_id", requestcontext.RequestID(ctx),
			"schema_id", schemaID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	opts := BulkOptions{
		StopOnFailure:      q.Get("stopOnFailure") == "true",
		ParallelProcessing: q.Get("parallelProcessing") == "true",
	}
	h.runBatch(w, r, bulkmodels.Batch{
		Name:      q.Get("batchName"),
		SchemaID:  schemaID.String(),
		IssuerDID: q.Get("issuerDid"),
		Records:   rows,
		Options:   opts.toModel(),
	})
}

func csvBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.Body == nil {
			return nil, nil, dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return io.LimitReader(r.Body, httputil.MaxBodyBytes), func() {}, nil
	}
	if err := r.ParseMultipartForm(httputil.MaxBodyBytes); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "multipart form must include a file part")
	}
	return file, func() { _ = file.Close() }, nil
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request, batch bulkmodels.Batch) {
	ctx := r.Context()
	result, err := h.bulk.ProcessBatch(ctx, batch)
	if err != nil {
		h.logFailure(ctx, "bulk issue failed", err, "schema_id", batch.SchemaID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleBatchResult handles GET /bulkIssue/{batchId}.
func (h *Handler) HandleBatchResult(w http.ResponseWriter, r *http.Request) {
	batchID, err := id.ParseBatchID(chi.URLParam(r, "batchId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.bulk.Result(r.Context(), batchID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Timestamp: requestcontext.Now(ctx).UTC(), Checks: map[string]string{}}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				"request_id", requestcontext.RequestID(ctx),
				"check", name,
				"error", err,
			)
			resp.Status = "degraded"
			resp.Checks[name] = "unavailable"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

// logFailure logs server-side failures at error and caller mistakes at warn.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	switch code := dErrors.CodeOf(err); {
	case errors.Is(err, context.Canceled):
		h.logger.InfoContext(ctx, msg, args...)
	case code == dErrors.CodeInternal, code == dErrors.CodeExternalService, code == dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, args...)
	default:
		h.logger.WarnContext(ctx, msg, args...)
	}
}
