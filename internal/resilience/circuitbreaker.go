// Package resilience keeps a dead translation backend from stalling every
// cache miss.
//
// [CircuitBreaker] guards one backend: after MaxFailures consecutive
// failures it rejects calls for ResetTimeout, then lets HalfOpenMax probes
// through and closes again once they all succeed. [FallbackGroup] tries an
// ordered list of backends, each behind its own breaker.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] without calling the
// backend while the breaker is open or out of probes.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls with [ErrCircuitOpen].
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax probes must succeed to close the breaker. Default: 3.
	HalfOpenMax int

	// IsFailure decides which errors count against the backend. Other
	// errors pass through untouched. Default: everything except context
	// cancellation and deadline expiry.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now.
	Now func() time.Time
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	if c.IsFailure == nil {
		c.IsFailure = backendFault
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// backendFault is the default IsFailure: a caller giving up says nothing
// about the backend.
func backendFault(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Counts is a point-in-time view of a breaker.
type Counts struct {
	State               State
	ConsecutiveFailures int
	// RetryAt is when an open breaker admits probes again. Zero unless open.
	RetryAt time.Time
}

// CircuitBreaker guards calls to one backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int // admitted in the current half-open round
	successes int // successful probes in the current round
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{cfg: cfg}
}

// transition moves to state to and returns a function that reports it.
// Must be called with cb.mu held; the returned function must be called
// after unlocking.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	if from == to {
		return func() {}
	}
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateHalfOpen:
		cb.probes, cb.successes = 0, 0
	case StateClosed:
		cb.failures, cb.probes, cb.successes = 0, 0, 0
	}
	name, hook := cb.cfg.Name, cb.cfg.OnStateChange
	return func() {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "resilience: circuit breaker state change",
			"name", name, "from", from.String(), "to", to.String())
		if hook != nil {
			hook(name, from, to)
		}
	}
}

// admit decides whether a call may proceed. probe reports whether it runs
// as a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, notify func(), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	notify = func() {}
	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, notify, ErrCircuitOpen
		}
		notify = cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, notify, ErrCircuitOpen
		}
		cb.probes++
		return true, notify, nil
	}
	return false, notify, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) func() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err != nil && !cb.cfg.IsFailure(err):
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}
		return func() {}

	case err != nil:
		if probe {
			// A failed probe reopens immediately.
			cb.failures = cb.cfg.MaxFailures
			return cb.transition(StateOpen)
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			return cb.transition(StateOpen)
		}
		return func() {}

	case probe:
		if cb.state != StateHalfOpen {
			return func() {}
		}
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			return cb.transition(StateClosed)
		}
		return func() {}

	default:
		cb.failures = 0
		return func() {}
	}
}

// Execute calls fn unless the breaker is open. While half-open only
// HalfOpenMax calls are admitted until the round is decided.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, notify, err := cb.admit()
	notify()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)()
	return err
}

// State returns the current state. An open breaker whose timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the
// next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	return cb.Counts().State
}

// Counts returns a snapshot of the breaker.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := Counts{State: cb.state, ConsecutiveFailures: cb.failures}
	if cb.state == StateOpen {
		c.RetryAt = cb.openedAt.Add(cb.cfg.ResetTimeout)
		if !cb.cfg.Now().Before(c.RetryAt) {
			c.State = StateHalfOpen
			c.RetryAt = time.Time{}
		}
	}
	return c
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.transition(StateClosed)
	cb.failures, cb.probes, cb.successes = 0, 0, 0
	cb.mu.Unlock()
	notify()
}
