package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestExecutor wires all three components onto one synthetic timeline so
// rate-limit waits and backoff delays are observable without real sleeping.
func newTestExecutor(rpm int, maxRetries int, threshold int) (*Executor, *fakeTimeline) {
	tl := newFakeTimeline()

	limiter := NewLimiter(LimiterConfig{
		RequestsPerMinute: rpm,
		MinDelay:          time.Second,
		MaxDelay:          time.Second,
		Jitter:            0,
	})
	limiter.now = tl.Now
	limiter.sleep = tl.Sleep

	breaker := NewBreaker(BreakerConfig{FailureThreshold: threshold, ResetTimeout: time.Minute})
	breaker.now = tl.Now

	retrier := NewRetrier(RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}, nil, zap.NewNop())
	retrier.sleep = tl.Sleep

	return NewExecutor(limiter, breaker, retrier, zap.NewNop()), tl
}

func TestExecutor_OneRateLimitSlotPerLogicalOperation(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(60, 3, 10)

	calls := 0
	err := exec.Execute(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	// Three attempts, one slot: the window holds exactly one timestamp.
	require.Equal(t, 1, exec.LimiterStats().RequestsInWindow)
}

func TestExecutor_OpenCircuitFailsFastWithoutInvokingOperation(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(60, 1, 2)
	ctx := context.Background()

	boom := errors.New("upstream down")
	err := exec.Execute(ctx, "fetch", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, StateOpen, exec.BreakerState())

	invoked := 0
	err = exec.Execute(ctx, "fetch", func(context.Context) error {
		invoked++
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Zero(t, invoked)
}

func TestExecutor_FinalErrorSurfacedUnchanged(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(60, 1, 10)

	final := &statusErr{code: 502}
	err := exec.Execute(context.Background(), "fetch", func(context.Context) error {
		return final
	})
	require.Equal(t, final, err)
}
