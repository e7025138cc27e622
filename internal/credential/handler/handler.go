// Package handler serves credential lookups and issuer statistics.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credreg/internal/credential/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/platform/httputil"
	"credreg/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, credentialID id.CredentialID) (*models.Record, error)
	ListByRecipient(ctx context.Context, recipient id.DID, filter models.ListFilter) ([]models.Record, error)
	IssuerStats(ctx context.Context, issuer id.DID) (*models.IssuerStats, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/credentials", h.HandleList)
	r.Get("/credential/{id}", h.HandleGet)
	r.Get("/issuers/{did}/stats", h.HandleIssuerStats)
}

// HandleList handles GET /credentials?recipientDid=...&includeRevoked=true.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("recipientDid")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "recipientDid query parameter is required"))
		return
	}
	recipient, err := id.ParseDID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := models.ListFilter{IncludeRevoked: r.URL.Query().Get("includeRevoked") == "true"}

	records, err := h.service.ListByRecipient(ctx, recipient, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list credentials failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

// HandleGet handles GET /credential/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Get(ctx, credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleIssuerStats handles GET /issuers/{did}/stats.
func (h *Handler) HandleIssuerStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := id.ParseDID(chi.URLParam(r, "did"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	stats, err := h.service.IssuerStats(ctx, issuer)
	if err != nil {
		h.logger.ErrorContext(ctx, "issuer stats failed",
			"request_id", requestcontext.RequestID(ctx),
			"issuer_did", issuer,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
