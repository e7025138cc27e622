package providers

import (
	"context"
	"time"
)

// Call runs fn with a deadline of timeout and normalizes any failure into a
// *ProviderError naming provider and operation. A timeout of zero leaves the
// caller's context deadline in charge.
func Call[T any](ctx context.Context, timeout time.Duration, provider, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := fn(ctx)
	if err == nil && ctx.Err() != nil {
		// The provider ignored the deadline and answered late.
		err = ctx.Err()
	}
	if err != nil {
		var zero T
		return zero, normalize(err, provider, operation)
	}
	return out, nil
}

// CallErr is Call for operations without a result.
func CallErr(ctx context.Context, timeout time.Duration, provider, operation string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, timeout, provider, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
