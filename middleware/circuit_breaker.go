package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shrek82/persist/conn"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "closed"
}

// CircuitBreaker fails statements fast with ErrCircuitOpen after
// Threshold consecutive engine failures. Rollbacks always pass so an open
// transaction can still be unwound.
type CircuitBreaker struct {
	Threshold    int           // Number of failures before opening
	ResetTimeout time.Duration // Time to wait before half-open

	mu             sync.Mutex
	state          State
	failures       int
	lastFailure    time.Time
	halfOpenPassed bool
	now            func() time.Time
}

func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		Threshold:    threshold,
		ResetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// State reports the current breaker state.
func (m *CircuitBreaker) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *CircuitBreaker) Intercept(ctx context.Context, op *conn.Op, next conn.Handler) error {
	if op.Kind == conn.OpRollback {
		return next(ctx, op)
	}

	m.mu.Lock()
	switch m.state {
	case StateOpen:
		if m.now().Sub(m.lastFailure) > m.ResetTimeout {
			m.state = StateHalfOpen
			m.halfOpenPassed = true
		} else {
			m.mu.Unlock()
			return ErrCircuitOpen
		}
	case StateHalfOpen:
		// One probe at a time.
		if m.halfOpenPassed {
			m.mu.Unlock()
			return ErrCircuitOpen
		}
		m.halfOpenPassed = true
	}
	m.mu.Unlock()

	err := next(ctx, op)

	m.mu.Lock()
	defer m.mu.Unlock()

	// The caller giving up says nothing about the engine.
	if err != nil && ctx.Err() == nil {
		m.recordFailure()
	} else {
		m.recordSuccess()
	}
	return err
}

func (m *CircuitBreaker) recordFailure() {
	m.failures++
	m.lastFailure = m.now()

	switch m.state {
	case StateClosed:
		if m.failures >= m.Threshold {
			m.state = StateOpen
		}
	case StateHalfOpen:
		m.state = StateOpen
		m.halfOpenPassed = false
	}
}

// recordSuccess resets the count, so only consecutive failures open the breaker.
func (m *CircuitBreaker) recordSuccess() {
	if m.state == StateHalfOpen {
		m.state = StateClosed
		m.halfOpenPassed = false
	}
	m.failures = 0
}
