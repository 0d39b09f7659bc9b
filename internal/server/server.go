// Package server exposes a [session.Session] and the translation service
// over a small JSON HTTP API. OCR front ends post captured text; the API
// answers with classified lines, resolved speakers and cached or fresh
// translations.
//
// Routes:
//
//	POST /v1/classify          classify without touching session state
//	POST /v1/process           classify, detect cutscenes, resolve speakers
//	POST /v1/cutscene          run the cutscene detector alone
//	POST /v1/translate         full pipeline including the translation backend
//	POST /v1/cache/lookup      look up a memoized translation
//	POST /v1/cache             store a translation
//	GET  /v1/stats             session snapshot
//	POST /v1/reload            reload the character database
//	POST /v1/session/clear     forget speakers and cached translations
//	POST /v1/promotions/flush  persist promotion candidates
//	GET  /v1/learned           list persisted learned names
//	GET  /v1/backends          circuit breaker state of each backend
//	POST /v1/backends/{name}/reset  close one backend's circuit breaker
//	GET  /healthz, /readyz     liveness and readiness
//	GET  /metrics              Prometheus exposition
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/cutscene"
	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/health"
	"github.com/MrWong99/lorelens/internal/observe"
	"github.com/MrWong99/lorelens/internal/resilience"
	"github.com/MrWong99/lorelens/internal/session"
	"github.com/MrWong99/lorelens/internal/translate"
)

// maxBodyBytes bounds request bodies. OCR captures are a few hundred bytes.
const maxBodyBytes = 1 << 20

// BackendStatuser reports and resets per-backend breakers.
// [translate.Fallback] implements it.
type BackendStatuser interface {
	Statuses() []resilience.BackendStatus
	Reset(name string) error
}

// Server routes HTTP requests to the session and translation service.
type Server struct {
	sess       *session.Session
	translator *translate.Service
	backends   BackendStatuser
	learned    character.LearnedStore
	health     *health.Handler
	metrics    *observe.Metrics
	promHTTP   http.Handler

	mux *http.ServeMux
}

// Option configures a [Server].
type Option func(*Server)

// WithTranslator enables /v1/translate and /v1/backends. backends may be nil.
func WithTranslator(svc *translate.Service, backends BackendStatuser) Option {
	return func(s *Server) {
		s.translator = svc
		s.backends = backends
	}
}

// WithLearnedStore enables /v1/learned.
func WithLearnedStore(store character.LearnedStore) Option {
	return func(s *Server) { s.learned = store }
}

// WithHealth registers /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records request durations in m and serves promHTTP on
// /metrics. Either may be nil.
func WithMetrics(m *observe.Metrics, promHTTP http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.promHTTP = promHTTP
	}
}

// New creates a Server for sess.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{sess: sess, mux: http.NewServeMux()}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

// Handler returns the root handler wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.metrics)(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/classify", s.handleClassify)
	s.mux.HandleFunc("POST /v1/process", s.handleProcess)
	s.mux.HandleFunc("POST /v1/cutscene", s.handleCutscene)
	s.mux.HandleFunc("POST /v1/translate", s.handleTranslate)
	s.mux.HandleFunc("POST /v1/cache/lookup", s.handleCacheLookup)
	s.mux.HandleFunc("POST /v1/cache", s.handleCachePut)
	s.mux.HandleFunc("GET /v1/stats", s.handleStats)
	s.mux.HandleFunc("POST /v1/reload", s.handleReload)
	s.mux.HandleFunc("POST /v1/session/clear", s.handleClear)
	s.mux.HandleFunc("POST /v1/promotions/flush", s.handleFlush)
	s.mux.HandleFunc("GET /v1/learned", s.handleLearned)
	s.mux.HandleFunc("GET /v1/backends", s.handleBackends)
	s.mux.HandleFunc("POST /v1/backends/{name}/reset", s.handleBackendReset)

	if s.health != nil {
		s.health.Register(s.mux)
	}
	if s.promHTTP != nil {
		s.mux.Handle("GET /metrics", s.promHTTP)
	}
}

// ─── Request / response bodies ──────────────────────────────────────────────

type textRequest struct {
	Text string `json:"text"`
}

type cutsceneResponse struct {
	Detected bool             `json:"detected"`
	Result   *cutscene.Result `json:"result,omitempty"`
}

// cacheRequest addresses a cache entry by its three key components.
type cacheRequest struct {
	Content     string        `json:"content"`
	Speaker     string        `json:"speaker"`
	Type        dialogue.Type `json:"type"`
	Translation string        `json:"translation,omitempty"`
}

type cacheLookupResponse struct {
	Hit         bool   `json:"hit"`
	Translation string `json:"translation,omitempty"`
}

type flushResponse struct {
	Saved int `json:"saved"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// line rebuilds the dialogue line a cache entry belongs to.
func (c cacheRequest) line() dialogue.DialogueLine {
	l := dialogue.DialogueLine{Type: c.Type, Content: c.Content}
	if l.Type == "" {
		l.Type = dialogue.TypeNormal
	}
	if c.Speaker != "" {
		l.Speaker = &dialogue.ResolvedSpeaker{Name: c.Speaker}
	}
	return l
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Classify(req.Text))
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Process(r.Context(), req.Text))
}

func (s *Server) handleCutscene(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	res, ok := s.sess.DetectCutscene(req.Text)
	if !ok {
		writeJSON(w, http.StatusOK, cutsceneResponse{})
		return
	}
	writeJSON(w, http.StatusOK, cutsceneResponse{Detected: true, Result: &res})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		writeError(w, http.StatusServiceUnavailable, "translation is disabled: no backends configured")
		return
	}
	var req textRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.translator.Translate(r.Context(), req.Text)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, translate.ErrNoContent):
		// Nothing to translate is a normal outcome for OCR noise.
		writeJSON(w, http.StatusOK, res)
	default:
		observe.Logger(r.Context()).Warn("server: translation failed", "err", err)
		status := http.StatusBadGateway
		if errors.Is(err, resilience.ErrAllFailed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
	}
}

func (s *Server) handleCacheLookup(w http.ResponseWriter, r *http.Request) {
	var req cacheRequest
	if !decode(w, r, &req) {
		return
	}
	tr, ok := s.sess.CacheGet(req.line())
	writeJSON(w, http.StatusOK, cacheLookupResponse{Hit: ok, Translation: tr})
}

func (s *Server) handleCachePut(w http.ResponseWriter, r *http.Request) {
	var req cacheRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Content == "" || req.Translation == "" {
		writeError(w, http.StatusBadRequest, "content and translation are required")
		return
	}
	if req.Type != "" && !req.Type.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown dialogue type "+string(req.Type))
		return
	}
	s.sess.CachePut(req.line(), req.Translation)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Stats())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	diff, err := s.sess.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.sess.ClearSession()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	n, err := s.sess.FlushPromotions(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Warn("server: promotion flush incomplete", "saved", n, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, flushResponse{Saved: n})
}

func (s *Server) handleLearned(w http.ResponseWriter, r *http.Request) {
	if s.learned == nil {
		writeJSON(w, http.StatusOK, []character.LearnedName{})
		return
	}
	names, err := s.learned.List(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if names == nil {
		names = []character.LearnedName{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleBackends(w http.ResponseWriter, _ *http.Request) {
	if s.backends == nil {
		writeJSON(w, http.StatusOK, []resilience.BackendStatus{})
		return
	}
	writeJSON(w, http.StatusOK, s.backends.Statuses())
}

func (s *Server) handleBackendReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.backends == nil {
		writeError(w, http.StatusNotFound, "unknown backend "+name)
		return
	}
	if err := s.backends.Reset(name); err != nil {
		if errors.Is(err, resilience.ErrUnknownBackend) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("server: circuit breaker reset", "backend", name)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// decode reads a JSON body into v. On failure it writes a 400 response and
// returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}
