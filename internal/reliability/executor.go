package reliability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shelfwatch/crawler/internal/telemetry"
)

// Executor composes the rate limiter, retrier, and circuit breaker into one
// execute contract. Ordering matters: a logical operation acquires exactly one
// rate-limit slot, then retries wrap the breaker-guarded call, so internal
// retries are governed by backoff alone. When the circuit is open, retry
// attempts fail fast on the cheap breaker check instead of touching the
// network.
type Executor struct {
	limiter *Limiter
	breaker *Breaker
	retrier *Retrier
	logger  *zap.Logger
}

// NewExecutor builds an Executor. One Executor instance (and therefore one
// limiter and one breaker) should be shared by every worker so the documented
// budget holds regardless of concurrency.
func NewExecutor(limiter *Limiter, breaker *Breaker, retrier *Retrier, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		limiter: limiter,
		breaker: breaker,
		retrier: retrier,
		logger:  logger,
	}
}

// Execute runs one logical upstream operation through the full reliability
// stack. On success it logs the attempt count and duration; on exhausted
// failure it logs and returns the final error unchanged.
func (e *Executor) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := e.limiter.Acquire(ctx); err != nil {
		return err
	}

	start := time.Now()
	attempts, err := e.retrier.Do(ctx, op, func(ctx context.Context) error {
		return e.breaker.Execute(ctx, fn)
	})
	telemetry.ObserveRetryAttempts(attempts)
	if err != nil {
		telemetry.CountUpstreamAttempt("error")
		e.logger.Error("operation failed",
			zap.String("op", op),
			zap.Int("attempts", attempts),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	telemetry.CountUpstreamAttempt("success")
	e.logger.Debug("operation succeeded",
		zap.String("op", op),
		zap.Int("attempts", attempts),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// BreakerState exposes the shared breaker state for status reporting.
func (e *Executor) BreakerState() State {
	return e.breaker.State()
}

// LimiterStats exposes the shared limiter stats for status reporting.
func (e *Executor) LimiterStats() LimiterStats {
	return e.limiter.Stats()
}
