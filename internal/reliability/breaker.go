package reliability

import (
	"context"
	"sync"
	"time"

	"github.com/shelfwatch/crawler/internal/telemetry"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed passes all calls through.
	StateClosed State = iota
	// StateOpen rejects all calls immediately.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before admitting probes.
	ResetTimeout time.Duration
	// HalfOpenRequests caps in-flight probes while half-open.
	HalfOpenRequests int
	// OnStateChange is an optional transition callback.
	OnStateChange func(from, to State)
}

// BreakerStats is a point-in-time view of breaker internals.
type BreakerStats struct {
	State               State
	ConsecutiveFailures int
	LastFailure         time.Time
}

// Breaker is a three-state failure-isolation machine. The OPEN to HALF_OPEN
// transition happens lazily: any state inspection or Execute call after the
// reset timeout flips the state.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int

	now func() time.Time
}

// NewBreaker builds a Breaker with defaults of 5 failures, 60s reset, 1 probe.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Execute runs fn under breaker protection. On rejection it returns
// ErrCircuitOpen without invoking fn; otherwise it returns fn's error
// unchanged so the caller always sees the underlying cause.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err)
	return err
}

// State reports the current state, applying the lazy open-to-half-open
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Stats reports breaker internals, applying the lazy transition first.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return BreakerStats{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		LastFailure:         b.lastFailure,
	}
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()

	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenRequests {
			return ErrCircuitOpen
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == StateHalfOpen
	if wasProbe && b.probes > 0 {
		b.probes--
	}

	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if wasProbe || (b.state == StateClosed && b.failures >= b.cfg.FailureThreshold) {
			b.transitionTo(StateOpen)
		}
		return
	}

	b.failures = 0
	if wasProbe {
		b.transitionTo(StateClosed)
	}
}

// refresh applies the lazy OPEN -> HALF_OPEN transition. Callers must hold b.mu.
func (b *Breaker) refresh() {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		b.transitionTo(StateHalfOpen)
	}
}

// transitionTo switches states and resets the probe count. Callers must hold b.mu.
func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.probes = 0
	telemetry.SetBreakerState(int(next))
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(prev, next)
	}
}
