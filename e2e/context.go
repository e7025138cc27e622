package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestContext holds the HTTP client and the state shared between steps of
// one scenario.
type TestContext struct {
	BaseURL      string
	IssuerDID    string
	HTTPClient   *http.Client
	LastResponse *http.Response
	LastBody     []byte

	saved map[string]string
}

// NewTestContext builds a context against the registry at baseURL.
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		IssuerDID:  fmt.Sprintf("did:example:e2e-issuer-%d", time.Now().UnixNano()),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		saved:      make(map[string]string),
	}
}

// Reset clears per-scenario state. Each scenario issues under a fresh
// issuer DID so stats assertions do not see earlier scenarios.
func (tc *TestContext) Reset() {
	tc.LastResponse = nil
	tc.LastBody = nil
	tc.saved = make(map[string]string)
	tc.IssuerDID = fmt.Sprintf("did:example:e2e-issuer-%d", time.Now().UnixNano())
}

func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(payload), map[string]string{"Content-Type": "application/json"})
}

// POSTRaw sends body as-is with the given content type.
func (tc *TestContext) POSTRaw(path, contentType, body string) error {
	return tc.do(http.MethodPost, path, strings.NewReader(body), map[string]string{"Content-Type": contentType})
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), tc.HTTPClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.LastResponse = resp
	tc.LastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	return nil
}

// GetResponseField resolves a dotted path such as "record.status" or
// "results.0.status" in the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var current interface{}
	if err := json.Unmarshal(tc.LastBody, &current); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(field, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in response", field)
			}
			current = value
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range for %q", part, field)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return current, nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastBody
}

func (tc *TestContext) GetIssuerDID() string {
	return tc.IssuerDID
}

func (tc *TestContext) Save(key, value string) {
	tc.saved[key] = value
}

func (tc *TestContext) Saved(key string) (string, bool) {
	v, ok := tc.saved[key]
	return v, ok
}
