// Package resilience shields the remote API from retry storms and bounds
// how long callers wait on an unhealthy backend.
package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and not allowing requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed CircuitState = iota
	// StateOpen means the circuit has tripped and is rejecting requests.
	StateOpen
	// StateHalfOpen means a limited number of trials are let through.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds the configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in half-open state before closing.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before transitioning to half-open.
	OpenTimeout time.Duration
	// HalfOpenTrials caps concurrent requests while half-open. Zero means SuccessThreshold.
	HalfOpenTrials int
	// IsFailure decides whether an error counts against the backend.
	// Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called outside the lock after each transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns a configuration with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreakerStats holds statistics about the circuit breaker.
type CircuitBreakerStats struct {
	State           CircuitState `json:"-"`
	StateName       string       `json:"state"`
	TotalSuccesses  int64        `json:"total_successes"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	ConsecFailures  int          `json:"consecutive_failures"`
	ConsecSuccesses int          `json:"consecutive_successes"`
}

// CircuitBreaker guards calls to the remote API.
type CircuitBreaker struct {
	mu sync.Mutex

	config CircuitBreakerConfig
	now    func() time.Time

	state           CircuitState
	consecFailures  int
	consecSuccesses int
	openedAt        time.Time
	trials          int

	totalSuccesses atomic.Int64
	totalFailures  atomic.Int64
	totalRejected  atomic.Int64
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.HalfOpenTrials <= 0 {
		config.HalfOpenTrials = config.SuccessThreshold
	}
	return &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// State returns the current state, reporting HALF_OPEN once the open timeout elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.OpenTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Allow reserves a slot for one request. Every true result must be paired
// with exactly one Record call.
func (cb *CircuitBreaker) Allow() bool {
	var from, to CircuitState
	allowed, changed := func() (bool, bool) {
		cb.mu.Lock()
		defer cb.mu.Unlock()

		switch cb.state {
		case StateClosed:
			return true, false
		case StateOpen:
			if cb.now().Sub(cb.openedAt) < cb.config.OpenTimeout {
				return false, false
			}
			from, to = cb.transition(StateHalfOpen)
			cb.trials = 1
			return true, true
		case StateHalfOpen:
			if cb.trials >= cb.config.HalfOpenTrials {
				return false, false
			}
			cb.trials++
			return true, false
		}
		return false, false
	}()

	if !allowed {
		cb.totalRejected.Add(1)
	}
	if changed {
		cb.notify(from, to)
	}
	return allowed
}

// Record reports the outcome of an allowed request.
func (cb *CircuitBreaker) Record(err error) {
	if err != nil && cb.countsAsFailure(err) {
		cb.RecordFailure()
		return
	}
	cb.RecordSuccess()
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.totalSuccesses.Add(1)

	var from, to CircuitState
	changed := func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()

		cb.consecFailures = 0
		cb.consecSuccesses++

		if cb.state != StateHalfOpen {
			return false
		}
		if cb.trials > 0 {
			cb.trials--
		}
		if cb.consecSuccesses >= cb.config.SuccessThreshold {
			from, to = cb.transition(StateClosed)
			return true
		}
		return false
	}()

	if changed {
		cb.notify(from, to)
	}
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure() {
	cb.totalFailures.Add(1)

	var from, to CircuitState
	changed := func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()

		cb.consecSuccesses = 0
		cb.consecFailures++

		switch cb.state {
		case StateClosed:
			if cb.consecFailures >= cb.config.FailureThreshold {
				from, to = cb.transition(StateOpen)
				return true
			}
		case StateHalfOpen:
			// a failed trial trips the circuit again
			from, to = cb.transition(StateOpen)
			return true
		}
		return false
	}()

	if changed {
		cb.notify(from, to)
	}
}

// Stats returns the current statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	state := cb.State()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:           state,
		StateName:       state.String(),
		TotalSuccesses:  cb.totalSuccesses.Load(),
		TotalFailures:   cb.totalFailures.Load(),
		TotalRejected:   cb.totalRejected.Load(),
		ConsecFailures:  cb.consecFailures,
		ConsecSuccesses: cb.consecSuccesses,
	}
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, to := cb.transition(StateClosed)
	cb.consecFailures = 0
	cb.consecSuccesses = 0
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) (CircuitState, CircuitState) {
	from := cb.state
	cb.state = to
	cb.trials = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
		cb.consecSuccesses = 0
	case StateHalfOpen, StateClosed:
		cb.consecSuccesses = 0
		cb.consecFailures = 0
	}
	return from, to
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.config.OnStateChange != nil && from != to {
		cb.config.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if cb.config.IsFailure == nil {
		return true
	}
	return cb.config.IsFailure(err)
}

// Execute runs the given function if the circuit breaker allows it.
// Errors rejected by IsFailure are returned but recorded as successes,
// so a 404 from a healthy API never opens the circuit.
func Execute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T

	if !cb.Allow() {
		return zero, ErrCircuitOpen
	}

	result, err := fn()
	cb.Record(err)
	return result, err
}
