package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all backends failed")

// ErrUnknownBackend is returned by [FallbackGroup.Reset] for a name that was
// never registered.
var ErrUnknownBackend = errors.New("unknown backend")

// FallbackConfig configures the per-entry circuit breaker created for each
// backend in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// fallbackEntry pairs a backend value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// BackendStatus reports the breaker of one entry of a [FallbackGroup].
type BackendStatus struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RetryAt             *time.Time `json:"retry_at,omitempty"`
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// backend type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Entries must be registered before the group is shared; Execute and the
// status methods are then safe for concurrent use.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback backend. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Primary returns the first registered backend and its name.
func (fg *FallbackGroup[T]) Primary() (string, T) {
	return fg.entries[0].name, fg.entries[0].value
}

// Len returns the number of registered backends.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Statuses returns the breaker state of every backend in registration order.
func (fg *FallbackGroup[T]) Statuses() []BackendStatus {
	out := make([]BackendStatus, len(fg.entries))
	for i := range fg.entries {
		c := fg.entries[i].breaker.Counts()
		out[i] = BackendStatus{
			Name:                fg.entries[i].name,
			State:               c.State.String(),
			ConsecutiveFailures: c.ConsecutiveFailures,
		}
		if !c.RetryAt.IsZero() {
			retry := c.RetryAt
			out[i].RetryAt = &retry
		}
	}
	return out
}

// Reset closes the breaker of the named backend, e.g. after an operator
// fixed an expired API key.
func (fg *FallbackGroup[T]) Reset(name string) error {
	for i := range fg.entries {
		if fg.entries[i].name == name {
			fg.entries[i].breaker.Reset()
			return nil
		}
	}
	return fmt.Errorf("resilience: reset %q: %w", name, ErrUnknownBackend)
}

// Available reports whether at least one backend's breaker is not open.
func (fg *FallbackGroup[T]) Available() bool {
	for i := range fg.entries {
		if fg.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped. Returns [ErrAllFailed] wrapped with
// the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(name string, v T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(name string, v T) (struct{}, error) {
		return struct{}{}, fn(name, v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. fn receives the entry name so
// callers can attribute metrics. A cancelled ctx stops the failover early and
// its error is returned as is.
//
// This is a package-level function because Go does not support method-level
// type parameters.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(name string, v T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.name, entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping backend (circuit open)", "backend", entry.name)
		} else {
			slog.Warn("resilience: backend failed, trying next",
				"backend", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
