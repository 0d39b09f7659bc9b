// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when every required
//     [Checker] passes. Optional checkers are reported but never fail
//     the probe.
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded" or "fail") and a "checks" map containing the result of each
// named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g.
	// "characters", "learned"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error

	// Optional marks a dependency whose failure degrades the service
	// without making it unready, e.g. translation backends: the
	// classification API still works without them.
	Optional bool
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// ─── Domain checkers ────────────────────────────────────────────────────────

// ErrNoCharacters is reported by [CharactersChecker] for an empty database.
var ErrNoCharacters = errors.New("character database is empty")

// ErrNoBackend is reported by [BackendsChecker] when no translation backend
// can currently be tried.
var ErrNoBackend = errors.New("no translation backend available")

// CharactersChecker fails while the loaded character database holds no
// records. Speaker resolution degrades to provisional speakers only.
func CharactersChecker(count func() int) Checker {
	return Checker{
		Name: "characters",
		Check: func(context.Context) error {
			if count() == 0 {
				return ErrNoCharacters
			}
			return nil
		},
	}
}

// PingChecker wraps a store ping, e.g. the PostgreSQL learned-names pool.
func PingChecker(name string, ping func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: ping}
}

// BackendsChecker reports whether any translation backend has a closed or
// half-open circuit breaker. It is optional.
func BackendsChecker(available func() bool) Checker {
	return Checker{
		Name:     "translate",
		Optional: true,
		Check: func(context.Context) error {
			if !available() {
				return ErrNoBackend
			}
			return nil
		},
	}
}

// ─── Handlers ───────────────────────────────────────────────────────────────

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Report is the outcome of one readiness evaluation.
type Report struct {
	Ready    bool
	Degraded bool
	Checks   map[string]string
}

// Evaluate runs every checker concurrently, each bounded by
// [checkTimeout] on top of ctx.
func (h *Handler) Evaluate(ctx context.Context) Report {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			errs[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Ready: true, Checks: make(map[string]string, len(h.checkers))}
	for i, c := range h.checkers {
		if errs[i] == nil {
			rep.Checks[c.Name] = "ok"
			continue
		}
		rep.Checks[c.Name] = "fail: " + errs[i].Error()
		if c.Optional {
			rep.Degraded = true
		} else {
			rep.Ready = false
		}
		slog.Debug("health: check failed", "check", c.Name, "optional", c.Optional, "err", errs[i])
	}
	return rep
}

// Readyz answers 503 while any required checker fails. Failing optional
// checkers turn the status into "degraded" but keep the 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	res := result{Status: "ok", Checks: rep.Checks}
	status := http.StatusOK
	switch {
	case !rep.Ready:
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	case rep.Degraded:
		res.Status = "degraded"
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
