package handler

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credreg/internal/platform/logger"
	"credreg/internal/schema/models"
	"credreg/internal/schema/service"
	"credreg/internal/schema/store/memory"
	"credreg/pkg/testutil"
)

func newSchemaRouter(t *testing.T) http.Handler {
	t.Helper()
	registry := service.New(memory.NewInMemory())
	h := New(registry, logger.Discard())
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	return r
}

func TestPublishAndFetchSchema(t *testing.T) {
	router := newSchemaRouter(t)

	body := map[string]any{
		"id":      "cert",
		"name":    "Certificate",
		"version": "1.0",
		"fields": []map[string]any{
			{"name": "name", "type": "string", "required": true},
		},
	}
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/schemas", body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/schemas/cert"))
	testutil.AssertStatusOK(t, rr)
	schema := testutil.UnmarshalResponse[models.Schema](t, rr)
	assert.Equal(t, "Certificate", schema.Name)
	assert.True(t, schema.IsActive)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/schemas", body))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
}

func TestPublishRejectsInvalidDefinition(t *testing.T) {
	router := newSchemaRouter(t)
	body := map[string]any{
		"id":     "cert",
		"name":   "Certificate",
		"fields": []map[string]any{{"name": "when", "type": "timestamp"}},
	}
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/schemas", body))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Contains(t, rr.Body.String(), "unsupported field type")
}

func TestDeactivateHidesSchema(t *testing.T) {
	router := newSchemaRouter(t)
	body := map[string]any{
		"id":     "cert",
		"name":   "Certificate",
		"fields": []map[string]any{{"name": "name", "type": "string", "required": true}},
	}
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/schemas", body))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/schemas/cert/deactivate"))
	testutil.AssertStatusOK(t, rr)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/schemas/cert"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/schemas/cert?includeInactive=true"))
	testutil.AssertStatusOK(t, rr)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/schemas/cert/history"))
	testutil.AssertStatusOK(t, rr)
	history := testutil.UnmarshalResponse[HistoryResponse](t, rr)
	require.Len(t, history.Entries, 2)
	assert.Equal(t, models.HistoryDeactivated, history.Entries[1].Action)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/schemas"))
	list := testutil.UnmarshalResponse[SchemaListResponse](t, rr)
	assert.Zero(t, list.Total)
}

func TestGetUnknownSchema(t *testing.T) {
	router := newSchemaRouter(t)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/schemas/unknown"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}
