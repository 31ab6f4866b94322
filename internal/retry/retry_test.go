package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := sleep
	sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { sleep = orig })
	return &waits
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	waits := recordSleeps(t)
	calls := 0
	got, err := Do(context.Background(), DefaultPolicy, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestDo_RetriesTransientWithLinearBackoff(t *testing.T) {
	waits := recordSleeps(t)
	calls := 0
	got, err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Second}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("list: %w", domain.ErrTransient)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	recordSleeps(t)
	calls := 0
	_, err := Do(context.Background(), DefaultPolicy, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrTransient
	})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	recordSleeps(t)
	calls := 0
	_, err := Do(context.Background(), DefaultPolicy, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrProvider
	})
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, Policy{Attempts: 3, Delay: time.Hour}, func(context.Context) (int, error) {
		return 0, domain.ErrTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithAuth_RefreshesOnceAndRetries(t *testing.T) {
	calls, refreshes := 0, 0
	got, err := WithAuth(context.Background(),
		func(context.Context) error { refreshes++; return nil },
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", domain.ErrAuthExpired
			}
			return "fresh", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, refreshes)
}

func TestWithAuth_SecondFailurePropagates(t *testing.T) {
	refreshes := 0
	_, err := WithAuth(context.Background(),
		func(context.Context) error { refreshes++; return nil },
		func(context.Context) (string, error) { return "", domain.ErrAuthExpired })
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Equal(t, 1, refreshes)
}

func TestWithAuth_RefreshFailure(t *testing.T) {
	calls := 0
	_, err := WithAuth(context.Background(),
		func(context.Context) error { return errors.New("no refresh token") },
		func(context.Context) (string, error) { calls++; return "", domain.ErrAuthExpired })
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Contains(t, err.Error(), "no refresh token")
	assert.Equal(t, 1, calls)
}

func TestWithAuth_IgnoresOtherErrors(t *testing.T) {
	refreshes := 0
	_, err := WithAuth(context.Background(),
		func(context.Context) error { refreshes++; return nil },
		func(context.Context) (string, error) { return "", domain.ErrTransient })
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Zero(t, refreshes)
}
