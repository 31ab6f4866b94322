package drive

import (
	"context"

	"github.com/cwoolley/playbook/internal/retry"
)

// Resilient decorates a Provider so that every call is retried on
// transient failures and refreshes the token once on authorization failures.
type Resilient struct {
	next    Provider
	refresh retry.RefreshFunc
	policy  retry.Policy
}

var _ Provider = (*Resilient)(nil)

// NewResilient wraps next. refresh may be nil, in which case authorization
// failures propagate immediately.
func NewResilient(next Provider, refresh retry.RefreshFunc, policy retry.Policy) *Resilient {
	return &Resilient{next: next, refresh: refresh, policy: policy}
}

func guarded[T any](ctx context.Context, r *Resilient, op func(context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (T, error) {
		return retry.WithAuth(ctx, r.refresh, op)
	})
}

func (r *Resilient) List(ctx context.Context, q, pageToken string, pageSize int64) (Page, error) {
	return guarded(ctx, r, func(ctx context.Context) (Page, error) {
		return r.next.List(ctx, q, pageToken, pageSize)
	})
}

func (r *Resilient) Download(ctx context.Context, id string, limit int64) ([]byte, error) {
	return guarded(ctx, r, func(ctx context.Context) ([]byte, error) {
		return r.next.Download(ctx, id, limit)
	})
}

func (r *Resilient) Export(ctx context.Context, id, mimeType string) ([]byte, error) {
	return guarded(ctx, r, func(ctx context.Context) ([]byte, error) {
		return r.next.Export(ctx, id, mimeType)
	})
}

func (r *Resilient) Describe(ctx context.Context, id string) (string, error) {
	return guarded(ctx, r, func(ctx context.Context) (string, error) {
		return r.next.Describe(ctx, id)
	})
}
