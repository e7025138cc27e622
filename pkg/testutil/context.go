package testutil

import (
	"context"
	"net/http"

	id "credreg/pkg/domain"
	"credreg/pkg/requestcontext"
)

// WithCallerDID adds an authenticated caller DID to the request context, the
// way the auth middleware does for requests carrying a valid bearer token.
// Malformed DIDs are ignored.
func WithCallerDID(req *http.Request, did string) *http.Request {
	parsed, err := id.ParseDID(did)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithCallerDID(req.Context(), parsed))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
