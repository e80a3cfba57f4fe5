package reliability

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Retrier runs operations up to 1+MaxRetries times with exponential backoff
// between attempts. A Classifier decides which errors are worth retrying.
type Retrier struct {
	cfg      RetryConfig
	classify func(error) bool
	logger   *zap.Logger

	sleep func(context.Context, time.Duration) error
}

// NewRetrier builds a Retrier with defaults of 3 retries, 1s initial delay,
// 30s cap, multiplier 2. A nil classifier falls back to DefaultRetryable.
func NewRetrier(cfg RetryConfig, classify func(error) bool, logger *zap.Logger) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if classify == nil {
		classify = DefaultRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		cfg:      cfg,
		classify: classify,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Do runs fn until it succeeds, exhausts its attempts, or fails with a
// non-retryable error. It returns the attempt count along with the final
// error; the error is always fn's own (or the context's), never a wrapper.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	attempts := 0
	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		attempts++
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if !r.classify(err) {
			r.logger.Debug("error not retryable",
				zap.String("op", op),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return attempts, err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}
		delay := r.backoff(attempt)
		r.logger.Warn("retrying after failure",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return attempts, sleepErr
		}
	}
	return attempts, err
}

// backoff returns min(initial * multiplier^attempt, max) where attempt is the
// zero-based index of the attempt that just failed.
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt))
	if delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}
	return time.Duration(delay)
}
