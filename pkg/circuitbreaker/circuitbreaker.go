// Package circuitbreaker guards calls to an upstream that can fail as a
// whole, like the provider API during an outage. Once consecutive failures
// pass a threshold the breaker opens and callers fail fast instead of
// stacking up timed-out requests; after a cooldown a few probe requests
// decide whether to close it again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls. Callers treat it as
// transient and retry later.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
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
	}
	return "unknown"
}

type Config struct {
	// FailureThreshold opens the breaker after this many consecutive
	// failures in the closed state.
	FailureThreshold int
	// SuccessThreshold closes the breaker after this many successful probes
	// in the half-open state.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxRequests caps concurrent probes in the half-open state.
	HalfOpenMaxRequests int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

type CircuitBreaker struct {
	config Config

	state         State
	failureCount  int
	successCount  int
	halfOpenCount int
	lastStateTime time.Time

	mu sync.RWMutex
}

func New(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config:        config,
		state:         StateClosed,
		lastStateTime: time.Now(),
	}
}

// Execute runs fn under the breaker. In the open state fn is not called and
// ErrOpen is returned; otherwise fn's own error feeds the failure count and
// is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	cb.transition()

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return ErrOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.halfOpenCount++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	return err
}

// transition applies any state change that is due. Caller holds mu.
func (cb *CircuitBreaker) transition() {
	now := time.Now()
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.lastStateTime) >= cb.config.Timeout {
			cb.state = StateHalfOpen
			cb.halfOpenCount = 0
			cb.successCount = 0
			cb.lastStateTime = now
		}
	case StateHalfOpen:
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.lastStateTime = now
		}
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.lastStateTime = now
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	if cb.state == StateHalfOpen {
		// A failed probe re-opens immediately.
		cb.state = StateOpen
		cb.halfOpenCount = 0
		cb.lastStateTime = time.Now()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		cb.halfOpenCount--
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCount = 0
	cb.lastStateTime = time.Now()
}
