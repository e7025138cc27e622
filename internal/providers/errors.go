package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for provider calls.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorRejected       ErrorCategory = "rejected"
	ErrorOutage         ErrorCategory = "provider_outage"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorInternal       ErrorCategory = "internal"
)

// ProviderError wraps a provider failure with the provider, operation and
// normalized category.
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s %s [%s]: %s: %v", e.Provider, e.Operation, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s %s [%s]: %s", e.Provider, e.Operation, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a normalized provider error.
func NewProviderError(category ErrorCategory, provider, operation, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Operation:  operation,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorOutage || category == ErrorRateLimited,
	}
}

// IsRetryable reports whether err is a provider error worth retrying by the
// caller. The registry itself never retries.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// CategoryOf extracts the category of a provider error.
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// ErrNotAuthenticated is returned by SessionProvider.Session when there is no
// usable session.
var ErrNotAuthenticated = errors.New("not authenticated")

// normalize turns any error from a provider call into a *ProviderError.
func normalize(err error, provider, operation string) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		if pe.Operation == "" {
			pe.Operation = operation
		}
		return pe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ErrorTimeout, provider, operation, "call timed out", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ErrorOutage, provider, operation, "call cancelled", err)
	case errors.Is(err, ErrNotAuthenticated):
		return NewProviderError(ErrorAuthentication, provider, operation, "no session", err)
	default:
		return NewProviderError(ErrorInternal, provider, operation, "call failed", err)
	}
}
