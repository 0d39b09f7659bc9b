package translate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/observe"
	"github.com/MrWong99/lorelens/internal/session"
)

// Result is the outcome of [Service.Translate].
type Result struct {
	Line        dialogue.DialogueLine `json:"line"`
	Translation string                `json:"translation,omitempty"`
	Cached      bool                  `json:"cached"`
	Attempts    int                   `json:"attempts"`
}

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithRetryPolicy replaces [DefaultRetryPolicy].
func WithRetryPolicy(p RetryPolicy) ServiceOption {
	return func(s *Service) {
		s.policy = p
	}
}

// WithTargetLanguage sets the language passed to backends. Default:
// "English".
func WithTargetLanguage(lang string) ServiceOption {
	return func(s *Service) {
		if lang != "" {
			s.targetLanguage = lang
		}
	}
}

// Service ties a [session.Session] to a [Translator]: it classifies raw OCR
// text, serves repeated lines from the cache and sends the rest to the
// backend. The session lock is not held during backend calls.
type Service struct {
	sess    *session.Session
	backend Translator

	mu             sync.RWMutex
	policy         RetryPolicy
	targetLanguage string
}

// NewService creates a [Service].
func NewService(sess *session.Session, backend Translator, opts ...ServiceOption) *Service {
	s := &Service{
		sess:           sess,
		backend:        backend,
		policy:         DefaultRetryPolicy(),
		targetLanguage: "English",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reconfigure applies opts to a running service. In-flight translations
// keep the settings they started with.
func (s *Service) Reconfigure(opts ...ServiceOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range opts {
		o(s)
	}
}

// Translate runs raw through the pipeline and returns its translation.
// Lines with nothing to translate return [ErrNoContent] together with the
// classified line.
func (s *Service) Translate(ctx context.Context, raw string) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "translate.Translate")
	defer span.End()

	line := s.sess.Process(ctx, raw)
	res := Result{Line: line}
	span.SetAttributes(observe.AttrLineType.String(string(line.Type)))
	if line.Speaker != nil {
		span.SetAttributes(
			observe.AttrSpeaker.String(line.Speaker.Name),
			observe.AttrSpeakerKind.String(string(line.Speaker.Kind)),
		)
	}

	if !line.Translatable() {
		return res, ErrNoContent
	}

	if out, ok := s.sess.CacheGet(line); ok {
		res.Translation = out
		res.Cached = true
		span.SetAttributes(observe.AttrCacheHit.Bool(true))
		return res, nil
	}
	span.SetAttributes(observe.AttrCacheHit.Bool(false))

	req := Request{
		Content:    line.Content,
		Speaker:    line.Speaker.CacheTag(),
		Type:       line.Type,
		Choices:    line.Choices,
		StyleHints: s.sess.StyleHints(line.Speaker),
	}

	s.mu.RLock()
	policy := s.policy
	req.TargetLanguage = s.targetLanguage
	s.mu.RUnlock()

	log := observe.Logger(ctx)
	var lastErr error
	for attempt := range policy.Attempts() {
		res.Attempts = attempt + 1
		req.Params = policy.Params(attempt)

		out, err := s.backend.Translate(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				lastErr = ctxErr
				break
			}
			lastErr = err
			log.Warn("translate: backend call failed", "attempt", res.Attempts, "err", err)
			continue
		}
		if !policy.Accept(line.Content, out) {
			lastErr = ErrRejected
			log.Debug("translate: translation rejected", "attempt", res.Attempts, "temperature", req.Params.Temperature)
			continue
		}

		s.sess.CachePut(line, out)
		res.Translation = out
		span.SetAttributes(observe.AttrAttempt.Int(res.Attempts))
		return res, nil
	}

	span.SetAttributes(observe.AttrAttempt.Int(res.Attempts))
	observe.Fail(span, lastErr)
	if errors.Is(lastErr, ErrRejected) {
		return res, lastErr
	}
	return res, fmt.Errorf("translate: %w", lastErr)
}
