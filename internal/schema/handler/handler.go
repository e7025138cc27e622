// Package handler exposes the schema registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credreg/internal/schema/models"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/httputil"
	"credreg/pkg/requestcontext"
)

// Service is the subset of the schema registry the handler needs.
type Service interface {
	Register(ctx context.Context, schema models.Schema) (*models.Schema, error)
	Get(ctx context.Context, schemaID id.SchemaID) (*models.Schema, error)
	Describe(ctx context.Context, schemaID id.SchemaID) (*models.Schema, error)
	List(ctx context.Context, includeInactive bool) ([]models.Schema, error)
	SetActive(ctx context.Context, schemaID id.SchemaID, active bool) (*models.Schema, error)
	History(ctx context.Context, schemaID id.SchemaID) ([]models.HistoryEntry, error)
}

// Handler wires schema endpoints to the registry.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts read endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/schemas", h.HandleList)
	r.Get("/schemas/{id}", h.HandleGet)
	r.Get("/schemas/{id}/history", h.HandleHistory)
}

// RegisterAdmin mounts mutating endpoints on r, which the caller may guard
// with authentication.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/schemas", h.HandlePublish)
	r.Post("/schemas/{id}/activate", h.handleSetActive(true))
	r.Post("/schemas/{id}/deactivate", h.handleSetActive(false))
}

// HandleList handles GET /schemas.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	includeInactive := r.URL.Query().Get("includeInactive") == "true"
	schemas, err := h.service.List(ctx, includeInactive)
	if err != nil {
		h.logger.ErrorContext(ctx, "list schemas failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SchemaListResponse{Schemas: schemas, Total: len(schemas)})
}

// HandleGet handles GET /schemas/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemaID, err := id.ParseSchemaID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var schema *models.Schema
	if r.URL.Query().Get("includeInactive") == "true" {
		schema, err = h.service.Describe(ctx, schemaID)
	} else {
		schema, err = h.service.Get(ctx, schemaID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schema)
}

// HandlePublish handles POST /schemas.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterSchemaRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	schema, err := h.service.Register(ctx, req.ToSchema())
	if err != nil {
		h.logger.WarnContext(ctx, "publish schema failed",
			"request_id", requestID,
			"schema_id", req.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, schema)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		schemaID, err := id.ParseSchemaID(chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		schema, err := h.service.SetActive(ctx, schemaID, active)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, schema)
	}
}

// HandleHistory handles GET /schemas/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemaID, err := id.ParseSchemaID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.History(ctx, schemaID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{SchemaID: schemaID, Entries: entries})
}
