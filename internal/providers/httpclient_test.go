package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONClientPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["value"]})
	}))
	defer srv.Close()

	c := JSONClient{Provider: "test", BaseURL: srv.URL, Client: srv.Client()}
	var out struct{ Echo string }
	err := c.Post(context.Background(), "echo", "/echo", "tok", map[string]string{"value": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Echo)
}

func TestJSONClientStatusCategories(t *testing.T) {
	tests := []struct {
		status   int
		category ErrorCategory
	}{
		{http.StatusUnauthorized, ErrorAuthentication},
		{http.StatusTooManyRequests, ErrorRateLimited},
		{http.StatusServiceUnavailable, ErrorOutage},
		{http.StatusGatewayTimeout, ErrorTimeout},
		{http.StatusUnprocessableEntity, ErrorRejected},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := JSONClient{Provider: "test", BaseURL: srv.URL, Client: srv.Client()}
			err := c.Post(context.Background(), "op", "/", "", struct{}{}, nil)
			assert.Equal(t, tt.category, CategoryOf(err))
		})
	}
}

func TestJSONClientBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := JSONClient{Provider: "test", BaseURL: srv.URL, Client: srv.Client()}
	var out map[string]any
	err := c.Post(context.Background(), "op", "/", "", struct{}{}, &out)
	assert.Equal(t, ErrorBadData, CategoryOf(err))
}
