package reliability

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shelfwatch/crawler/internal/telemetry"
)

const windowSpan = time.Minute

// LimiterConfig paces outgoing calls against a requests-per-minute budget.
type LimiterConfig struct {
	RequestsPerMinute int
	MinDelay          time.Duration
	MaxDelay          time.Duration
	Jitter            time.Duration
}

// LimiterStats reports window occupancy without consuming a slot.
type LimiterStats struct {
	RequestsInWindow int
	CurrentDelay     time.Duration
}

// Limiter maintains a rolling 60-second window of past call timestamps and
// spaces calls so the budget is never exceeded. It is safe for concurrent use
// and is intended to be shared by all workers of a crawl.
type Limiter struct {
	cfg LimiterConfig

	mu       sync.Mutex
	window   []time.Time
	lastCall time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter builds a Limiter. Zero-valued config fields fall back to the
// documented defaults (17 rpm, 3s min spacing, 4.5s max spacing, 500ms jitter).
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 17
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 3 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay + 1500*time.Millisecond
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Acquire blocks until it is safe to perform one upstream call. The call's
// scheduled send time is computed and recorded in the window in one critical
// section, before any sleeping, so concurrent callers each consume a distinct
// slot and the budget holds no matter how many workers share the limiter. A
// uniform random jitter (0..Jitter) widens the spacing to avoid
// fingerprintable periodicity.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.purge(now)
	scheduled := l.reserve(now)
	l.mu.Unlock()

	wait := scheduled.Sub(now)
	if wait <= 0 {
		return nil
	}
	if err := l.sleep(ctx, wait); err != nil {
		l.cancelReservation(scheduled)
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	telemetry.ObserveRateLimitDelay(wait)
	return nil
}

// reserve picks the earliest send time satisfying both the jittered spacing
// from the previous reservation and the requests-per-minute window, appends
// it to the window, and advances lastCall. Callers must hold l.mu.
func (l *Limiter) reserve(now time.Time) time.Time {
	scheduled := now
	if !l.lastCall.IsZero() {
		gap := l.cfg.MinDelay + randomJitter(l.cfg.Jitter)
		if gap > l.cfg.MaxDelay {
			gap = l.cfg.MaxDelay
		}
		if t := l.lastCall.Add(gap); t.After(scheduled) {
			scheduled = t
		}
	}
	// The window holds scheduled sends, newest last. With the budget consumed,
	// the next slot frees when the budget-th most recent send leaves the span;
	// this bound is never clamped.
	if n := len(l.window); n >= l.cfg.RequestsPerMinute {
		if t := l.window[n-l.cfg.RequestsPerMinute].Add(windowSpan); t.After(scheduled) {
			scheduled = t
		}
	}
	l.window = append(l.window, scheduled)
	l.lastCall = scheduled
	return scheduled
}

// cancelReservation gives a slot back after a canceled wait, so an aborted
// caller does not burn budget.
func (l *Limiter) cancelReservation(scheduled time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.window) - 1; i >= 0; i-- {
		if l.window[i].Equal(scheduled) {
			l.window = append(l.window[:i], l.window[i+1:]...)
			break
		}
	}
}

// Stats reports the current window occupancy and the un-jittered delay a call
// would incur right now. It does not consume a slot.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.purge(now)
	delay := l.baseWait(now)
	if delay < 0 {
		delay = 0
	}
	return LimiterStats{
		RequestsInWindow: len(l.window),
		CurrentDelay:     delay,
	}
}

// baseWait computes the required wait before the next call, excluding jitter.
// Callers must hold l.mu.
func (l *Limiter) baseWait(now time.Time) time.Duration {
	var wait time.Duration
	if !l.lastCall.IsZero() {
		wait = l.cfg.MinDelay - now.Sub(l.lastCall)
		if wait < 0 {
			wait = 0
		}
		if wait > l.cfg.MaxDelay {
			wait = l.cfg.MaxDelay
		}
	}
	if n := len(l.window); n >= l.cfg.RequestsPerMinute {
		untilFree := l.window[n-l.cfg.RequestsPerMinute].Add(windowSpan).Sub(now)
		if untilFree > wait {
			wait = untilFree
		}
	}
	return wait
}

// purge drops window entries older than 60 seconds. Callers must hold l.mu.
func (l *Limiter) purge(now time.Time) {
	cutoff := now.Add(-windowSpan)
	idx := 0
	for idx < len(l.window) && !l.window[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.window = append(l.window[:0], l.window[idx:]...)
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
