package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errFail = errors.New("f")

func fail(context.Context) error { return errFail }
func ok(context.Context) error   { return nil }

// fakeClock lets tests move past ResetTimeout without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg *Config) (*breaker, *fakeClock) {
	b := newBreaker(cfg, zap.NewNop())
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b.now = clock.Now
	return b, clock
}

// ---------------------------------------------------------------------------
// DefaultConfig
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 60*time.Second, cfg.ResetTimeout)
	assert.Equal(t, 3, cfg.HalfOpenSuccesses)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestNewCircuitBreaker_NormalisesConfig(t *testing.T) {
	cfg := &Config{}
	b := newBreaker(cfg, nil)

	assert.Equal(t, 5, b.config.Threshold)
	assert.Equal(t, 60*time.Second, b.config.ResetTimeout)
	assert.Equal(t, 3, b.config.HalfOpenSuccesses)
	assert.Equal(t, 0, cfg.Threshold, "caller config must not be mutated")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

// ---------------------------------------------------------------------------
// State transitions
// ---------------------------------------------------------------------------

func TestBreaker_OpensAfterFiveFailures(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.ErrorIs(t, b.Call(ctx, fail), errFail)
		assert.Equal(t, StateClosed, b.State())
	}
	require.ErrorIs(t, b.Call(ctx, fail), errFail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenRejectsCalls(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, fail)
	}

	var called bool
	err := b.Call(ctx, func(context.Context) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, "circuit breaker is OPEN", err.Error())
	assert.False(t, called)
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b, clock := newTestBreaker(DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, fail)
	}

	clock.Advance(59 * time.Second)
	require.ErrorIs(t, b.Call(ctx, ok), ErrCircuitOpen)

	clock.Advance(1 * time.Second)
	require.NoError(t, b.Call(ctx, ok))
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ClosesAfterThreeHalfOpenSuccesses(t *testing.T) {
	b, clock := newTestBreaker(DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, fail)
	}
	clock.Advance(60 * time.Second)

	require.NoError(t, b.Call(ctx, ok))
	require.NoError(t, b.Call(ctx, ok))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Call(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, fail)
	}
	clock.Advance(60 * time.Second)

	require.NoError(t, b.Call(ctx, ok))
	require.ErrorIs(t, b.Call(ctx, fail), errFail)
	assert.Equal(t, StateOpen, b.State())

	// the reset window restarts from the half-open failure
	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, b.Call(ctx, ok), ErrCircuitOpen)
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	notFound := errors.New("not found")
	b, _ := newTestBreaker(&Config{
		Threshold: 2,
		IsFailure: func(err error) bool { return !errors.Is(err, notFound) },
	})

	for i := 0; i < 10; i++ {
		err := b.Call(context.Background(), func(context.Context) error { return notFound })
		require.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 1})
	_ = b.Call(context.Background(), fail)
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Call(context.Background(), ok))
}

func TestBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []struct{ from, to State }
	done := make(chan struct{}, 4)

	b, _ := newTestBreaker(&Config{
		Threshold: 2,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, struct{ from, to State }{from, to})
			mu.Unlock()
			done <- struct{}{}
		},
	})

	_ = b.Call(context.Background(), fail)
	_ = b.Call(context.Background(), fail)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, StateClosed, transitions[0].from)
	assert.Equal(t, StateOpen, transitions[0].to)
}

// ---------------------------------------------------------------------------
// Call mechanics
// ---------------------------------------------------------------------------

func TestBreaker_CallWithResultTyped(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig(), zap.NewNop())

	v, err := CallWithResultTyped(context.Background(), cb, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	var nilPtr *struct{}
	p, err := CallWithResultTyped(context.Background(), cb, func(context.Context) (*struct{}, error) {
		return nilPtr, nil
	})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 1, Timeout: 20 * time.Millisecond})

	err := b.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_PanicIsFailure(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 1})

	err := b.Call(context.Background(), func(context.Context) error {
		panic("boom")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_ConcurrentSafety(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Threshold: 100}, zap.NewNop())

	var wg sync.WaitGroup
	var successCount atomic.Int64

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cb.Call(context.Background(), ok); err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(50), successCount.Load())
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// Property: in the closed state the breaker opens exactly when a run of
// Threshold consecutive failures occurs.
// ---------------------------------------------------------------------------

func TestProperty_OpensOnConsecutiveFailures(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("open iff threshold consecutive failures seen", prop.ForAll(
		func(outcomes []bool) bool {
			b, _ := newTestBreaker(DefaultConfig())
			ctx := context.Background()

			run, opened := 0, false
			for _, success := range outcomes {
				if opened {
					break
				}
				if success {
					_ = b.Call(ctx, ok)
					run = 0
				} else {
					_ = b.Call(ctx, fail)
					run++
				}
				if run >= 5 {
					opened = true
				}
			}

			want := StateClosed
			if opened {
				want = StateOpen
			}
			return b.State() == want
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
