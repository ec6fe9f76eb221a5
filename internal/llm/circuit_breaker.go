package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Requests go to the primary summarizer
	CircuitOpen                         // Primary is failing; every request falls back
	CircuitHalfOpen                     // Cooldown passed; probing the primary
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("circuit(%d)", int(s))
	}
}

// Breaker defaults.
const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
	probesToClose           = 2
)

// CircuitBreaker stops calling a failing summarizer backend until a cooldown
// has passed, then lets single probes through until enough succeed.
type CircuitBreaker struct {
	mu  sync.Mutex
	now func() time.Time

	threshold int
	cooldown  time.Duration

	state    CircuitState
	failures int // Consecutive failures while closed
	probesOK int // Consecutive probe successes while half-open
	probing  bool
	openedAt time.Time
	onChange func(from, to CircuitState)
}

// NewCircuitBreaker opens after maxFailures consecutive failures and stays
// open for timeout. Non-positive values use the defaults.
func NewCircuitBreaker(maxFailures int, timeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = defaultFailureThreshold
	}
	if timeout <= 0 {
		timeout = defaultCooldown
	}
	return &CircuitBreaker{
		now:       time.Now,
		threshold: maxFailures,
		cooldown:  timeout,
	}
}

// OnStateChange registers fn to be called after every transition. fn runs
// under the breaker's lock and must not call back into it.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.probesOK = 0
	cb.probing = false
	switch to {
	case CircuitOpen:
		cb.openedAt = cb.now()
	case CircuitClosed:
		cb.failures = 0
	}
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

// Allow reports whether the next request may use the primary. While
// half-open only one probe is in flight at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.transition(CircuitHalfOpen)
	}
	if cb.state == CircuitHalfOpen {
		if cb.probing {
			return false
		}
		cb.probing = true
	}
	return true
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitHalfOpen {
		cb.failures = 0
		return
	}
	cb.probing = false
	cb.probesOK++
	if cb.probesOK >= probesToClose {
		cb.transition(CircuitClosed)
	}
}

// Release ends an in-flight probe that produced no outcome, such as one
// whose caller gave up, so the next request may probe again.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.probing = false
	}
}

// RecordFailure records a failed request. A failed probe reopens the
// circuit for a full cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.transition(CircuitOpen)
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed)
	cb.failures = 0
	cb.probing = false
}
