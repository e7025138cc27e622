package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallReturnsResult(t *testing.T) {
	out, err := Call(context.Background(), time.Second, "crypto", "issue", func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestCallTimeoutIsProviderError(t *testing.T) {
	err := CallErr(context.Background(), 10*time.Millisecond, "crypto", "issue", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorTimeout, pe.Category)
	assert.Equal(t, "crypto", pe.Provider)
	assert.Equal(t, "issue", pe.Operation)
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallLateSuccessCountsAsTimeout(t *testing.T) {
	err := CallErr(context.Background(), 5*time.Millisecond, "ledger", "record", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	assert.Equal(t, ErrorTimeout, CategoryOf(err))
}

func TestCallKeepsExistingCategory(t *testing.T) {
	rejected := NewProviderError(ErrorRejected, "", "", "issuer not allowed", nil)
	err := CallErr(context.Background(), time.Second, "crypto", "issue", func(context.Context) error {
		return rejected
	})
	assert.Equal(t, ErrorRejected, CategoryOf(err))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "crypto issue")
}

func TestCallWrapsPlainErrors(t *testing.T) {
	cause := errors.New("boom")
	err := CallErr(context.Background(), 0, "crypto", "verify", func(context.Context) error { return cause })
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorInternal, CategoryOf(err))
}
