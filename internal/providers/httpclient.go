package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxResponseBytes = 1 << 20

// JSONClient is the small HTTP/JSON transport shared by the HTTP adapters.
type JSONClient struct {
	Provider string
	BaseURL  string
	Client   *http.Client
}

// Post sends in as JSON to BaseURL+path and decodes the response into out
// (when out is non-nil). Non-2xx statuses become categorized ProviderErrors.
func (c JSONClient) Post(ctx context.Context, operation, path, bearer string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return NewProviderError(ErrorBadData, c.Provider, operation, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return NewProviderError(ErrorInternal, c.Provider, operation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return normalize(ctx.Err(), c.Provider, operation)
		}
		return NewProviderError(ErrorOutage, c.Provider, operation, "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return NewProviderError(ErrorOutage, c.Provider, operation, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewProviderError(categoryForStatus(resp.StatusCode), c.Provider, operation,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return NewProviderError(ErrorBadData, c.Provider, operation, "decode response", err)
	}
	return nil
}

func categoryForStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return ErrorTimeout
	case status >= 500:
		return ErrorOutage
	default:
		return ErrorRejected
	}
}
