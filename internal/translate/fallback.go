package translate

import (
	"context"
	"time"

	"github.com/MrWong99/lorelens/internal/observe"
	"github.com/MrWong99/lorelens/internal/resilience"
)

// Fallback implements [Translator] with automatic failover across multiple
// backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type Fallback struct {
	group   *resilience.FallbackGroup[Translator]
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ Translator = (*Fallback)(nil)

// NewFallback creates a [Fallback] with primary as the preferred backend.
// m may be nil.
func NewFallback(primary Translator, primaryName string, cfg resilience.FallbackConfig, m *observe.Metrics) *Fallback {
	if hook := cfg.CircuitBreaker.OnStateChange; m != nil {
		cfg.CircuitBreaker.OnStateChange = func(name string, from, to resilience.State) {
			m.RecordBreakerTransition(context.Background(), name, to.String())
			if hook != nil {
				hook(name, from, to)
			}
		}
	}
	return &Fallback{
		group:   resilience.NewFallbackGroup(primary, primaryName, cfg),
		metrics: m,
	}
}

// AddFallback registers an additional backend. It must not be called once
// the Fallback is in use.
func (f *Fallback) AddFallback(name string, t Translator) {
	f.group.AddFallback(name, t)
}

// Translate sends req to the first healthy backend and returns its answer.
func (f *Fallback) Translate(ctx context.Context, req Request) (string, error) {
	return resilience.ExecuteWithResult(ctx, f.group, func(name string, t Translator) (string, error) {
		ctx, span := observe.StartSpan(ctx, "translate.backend", observe.AttrBackend.String(name))
		defer span.End()

		start := time.Now()
		out, err := t.Translate(ctx, req)
		status := "ok"
		if err != nil {
			status = "error"
			observe.Fail(span, err)
			f.metrics.RecordBackendError(ctx, name)
		}
		f.metrics.RecordBackendRequest(ctx, name, status, time.Since(start).Seconds())
		return out, err
	})
}

// Statuses returns the breaker state of every backend.
func (f *Fallback) Statuses() []resilience.BackendStatus {
	return f.group.Statuses()
}

// Reset closes the circuit breaker of the named backend.
func (f *Fallback) Reset(name string) error {
	return f.group.Reset(name)
}

// Available reports whether any backend can currently be tried.
func (f *Fallback) Available() bool {
	return f.group.Available()
}
