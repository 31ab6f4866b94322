// Package retry wraps provider calls with bounded retries and a single
// token refresh on authorization failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
)

// Policy bounds the generic retry loop.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy retries transient failures three times with a linear backoff.
var DefaultPolicy = Policy{Attempts: 3, Delay: 500 * time.Millisecond}

// sleep waits for d or until ctx is done. Overridden in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// policy's attempts are used up. Attempt i (zero based) is followed by a
// wait of Delay*(i+1).
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !Retryable(err) || i == attempts-1 {
			break
		}
		if serr := sleep(ctx, p.Delay*time.Duration(i+1)); serr != nil {
			return zero, serr
		}
	}
	return zero, lastErr
}

// RefreshFunc obtains a fresh access token.
type RefreshFunc func(ctx context.Context) error

// WithAuth runs op and, if it fails with domain.ErrAuthExpired, refreshes
// the token once and runs op once more. A failed refresh returns both the
// original error and the refresh error.
func WithAuth[T any](ctx context.Context, refresh RefreshFunc, op func(context.Context) (T, error)) (T, error) {
	res, err := op(ctx)
	if err == nil || !errors.Is(err, domain.ErrAuthExpired) || refresh == nil {
		return res, err
	}

	var zero T
	if rerr := refresh(ctx); rerr != nil {
		return zero, fmt.Errorf("%w: refresh failed: %w", err, rerr)
	}
	return op(ctx)
}
