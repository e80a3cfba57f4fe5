// Package reliability wraps upstream calls with rate limiting, retry with
// exponential backoff, and circuit breaking.
package reliability

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call without
// running it. It is distinct from whatever error opened the circuit.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// retryableAware lets domain errors carry their own retry classification.
// Upstream status errors and validation errors implement it.
type retryableAware interface {
	Retryable() bool
}

var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"temporarily unavailable",
	"tls handshake",
	"unexpected eof",
	"eof",
}

// DefaultRetryable classifies an error for retry eligibility. Validation and
// authentication failures and 4xx-class errors report Retryable()==false and
// fail immediately; 5xx-class and network/timeout failures are retried; a
// rejection by the open circuit is retried (the breaker check is cheap and the
// circuit may admit a probe after its reset timeout). Unclassified errors
// default to retryable, giving transient failures a chance.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var aware retryableAware
	if errors.As(err, &aware) {
		return aware.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return true
}
