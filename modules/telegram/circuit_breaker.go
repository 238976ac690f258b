package telegram

import (
	"errors"
	"sync"
	"time"
)

const (
	circuitBreakerThreshold   = 5
	circuitBreakerTimeout     = time.Minute
	circuitBreakerHalfOpenMax = 3
)

// ErrCircuitOpen is returned when the Bot API circuit refuses a call.
var ErrCircuitOpen = errors.New("telegram circuit breaker is open")

type circuitState string

const (
	stateClosed   circuitState = "closed"
	stateOpen     circuitState = "open"
	stateHalfOpen circuitState = "half-open"
)

// CircuitBreaker stops calling the Bot API after repeated failures and
// tries it again once the open period has passed.
type CircuitBreaker struct {
	mu                 sync.Mutex
	failures           int
	consecutiveSuccess int
	state              circuitState
	openUntil          time.Time
	halfOpenAttempts   int

	threshold int
	timeout   time.Duration
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = circuitBreakerThreshold
	}
	if timeout <= 0 {
		timeout = circuitBreakerTimeout
	}
	return &CircuitBreaker{state: stateClosed, threshold: threshold, timeout: timeout, now: time.Now}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.consecutiveSuccess = 0

	if cb.state == stateHalfOpen || cb.failures >= cb.threshold {
		cb.state = stateOpen
		cb.openUntil = cb.now().Add(cb.timeout)
		cb.halfOpenAttempts = 0
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveSuccess++

	switch cb.state {
	case stateHalfOpen:
		if cb.consecutiveSuccess >= 2 {
			cb.state = stateClosed
			cb.failures = 0
			cb.halfOpenAttempts = 0
		}
	case stateClosed:
		if cb.consecutiveSuccess >= 3 {
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateHalfOpen:
		if cb.halfOpenAttempts < circuitBreakerHalfOpenMax {
			cb.halfOpenAttempts++
			return true
		}
		return false
	case stateOpen:
		if cb.now().After(cb.openUntil) {
			cb.state = stateHalfOpen
			cb.halfOpenAttempts = 1
			cb.consecutiveSuccess = 0
			return true
		}
		return false
	default:
		return true
	}
}

// State reports the breaker state for diagnostics.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return string(cb.state)
}
