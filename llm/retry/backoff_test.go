package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
}

func TestBackoffRetryer_MaxAttemptsExceeded(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	testErr := errors.New("persistent error")
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return testErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_UnboundedStopsOnCancel(t *testing.T) {
	r := newBackoffRetryer(fastPolicy(Unbounded), zap.NewNop())
	r.wait = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	err := r.Do(ctx, func(context.Context) error {
		callCount++
		if callCount == 25 {
			cancel()
		}
		return errors.New("never succeeds")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 25, callCount)
}

func TestBackoffRetryer_ContextCanceledDuringWait(t *testing.T) {
	retryer := NewBackoffRetryer(&RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2.0,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := retryer.Do(ctx, func(context.Context) error {
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestBackoffRetryer_ShouldRetryFilter(t *testing.T) {
	retryable := errors.New("retryable")
	fatal := errors.New("fatal")

	policy := fastPolicy(5)
	policy.ShouldRetry = func(err error) bool { return errors.Is(err, retryable) }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		if callCount == 1 {
			return retryable
		}
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, callCount)
}

func TestBackoffRetryer_PermanentNotRetried(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return Permanent(errors.New("bad request"))
	})

	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, callCount)
}

// Structured generation waits at least 1000ms before the second attempt and
// at least 2000ms before the third.
func TestGenerationRetryPolicy_DoublingDelays(t *testing.T) {
	r := newBackoffRetryer(GenerationRetryPolicy(3), zap.NewNop())

	var waits []time.Duration
	r.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	callCount := 0
	_, err := r.DoWithResult(context.Background(), func(context.Context) (any, error) {
		callCount++
		if callCount < 3 {
			return nil, ErrNoResult
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Len(t, waits, 2)
	assert.GreaterOrEqual(t, waits[0], 1000*time.Millisecond)
	assert.GreaterOrEqual(t, waits[1], 2000*time.Millisecond)
}

func TestBackoffRetryer_DelayCalculation(t *testing.T) {
	r := newBackoffRetryer(&RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}, zap.NewNop())

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{10, 1 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.calculateDelay(tt.retry), "retry %d", tt.retry)
	}
}

func TestBackoffRetryer_JitterStaysAboveInitial(t *testing.T) {
	r := newBackoffRetryer(&RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, zap.NewNop())

	for i := 0; i < 50; i++ {
		d := r.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())
	_ = retryer.Do(context.Background(), func(context.Context) error {
		return errors.New("fail")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithResultTyped(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	t.Run("success", func(t *testing.T) {
		v, err := DoWithResultTyped(context.Background(), retryer, func(context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("error returns zero", func(t *testing.T) {
		v, err := DoWithResultTyped(context.Background(), retryer, func(context.Context) (string, error) {
			return "partial", Permanent(errors.New("boom"))
		})
		require.Error(t, err)
		assert.Equal(t, "", v)
	})

	t.Run("retry then struct", func(t *testing.T) {
		type payload struct{ Action string }
		calls := 0
		v, err := DoWithResultTyped(context.Background(), retryer, func(context.Context) (payload, error) {
			calls++
			if calls == 1 {
				return payload{}, ErrNoResult
			}
			return payload{Action: "boost"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "boost", v.Action)
	})
}
