// Package session owns one translation session: the character database
// snapshot, the translation cache and the per-session speaker memory.
//
// All classification, resolution and cache operations of a [Session] run
// under a single mutex, so a polling OCR loop and a manual "translate now"
// action can share one session safely. [Session.Reload] and
// [Session.ClearSession] are atomic with respect to those operations.
//
// The session never calls a translation backend; it only supplies cache key
// material and stores results handed back by the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/classify"
	"github.com/MrWong99/lorelens/internal/cutscene"
	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/memo"
	"github.com/MrWong99/lorelens/internal/observe"
	"github.com/MrWong99/lorelens/internal/similarity"
	"github.com/MrWong99/lorelens/internal/speaker"
)

const defaultMinPromotionConfidence = 0.75

// Loader supplies the character database file. It is called at startup and
// on every reload.
type Loader func(ctx context.Context) (*character.File, error)

// FileLoader returns a [Loader] that reads the YAML or TOML file at path.
func FileLoader(path string) Loader {
	return func(context.Context) (*character.File, error) {
		return character.LoadFile(path)
	}
}

// StaticLoader returns a [Loader] that always yields f.
func StaticLoader(f *character.File) Loader {
	return func(context.Context) (*character.File, error) {
		return f, nil
	}
}

// StyleHints describe how a speaker talks, for translation backends.
type StyleHints struct {
	Speaker      string `json:"speaker,omitempty"`
	Role         string `json:"role,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Style        string `json:"style,omitempty"`
	Gender       string `json:"gender,omitempty"`
}

// Stats is a snapshot of session state for observability.
type Stats struct {
	ID                string          `json:"id"`
	Game              string          `json:"game"`
	Characters        int             `json:"characters"`
	StartedAt         time.Time       `json:"started_at"`
	LastReload        time.Time       `json:"last_reload"`
	Cache             memo.Stats      `json:"cache"`
	Speakers          []speaker.Entry `json:"speakers"`
	PendingPromotions int             `json:"pending_promotions"`
}

// Option configures a [Session].
type Option func(*Session)

// WithLearnedStore sets the store promoted speakers are persisted to and
// previously learned names are read from. Without one, promotion candidates
// stay queued and no learned names are loaded.
func WithLearnedStore(store character.LearnedStore) Option {
	return func(s *Session) {
		s.learned = store
	}
}

// WithMinPromotionConfidence sets the minimum candidate confidence that is
// persisted by [Session.FlushPromotions]. Default: 0.75 (three sightings).
func WithMinPromotionConfidence(v float64) Option {
	return func(s *Session) {
		s.minConfidence = v
	}
}

// WithMetrics reports classification, resolution and cache activity to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithSimilarityOptions configures the name similarity engine.
func WithSimilarityOptions(opts ...similarity.Option) Option {
	return func(s *Session) {
		s.similarityOpts = opts
	}
}

// WithResolverOptions configures the speaker resolver.
func WithResolverOptions(opts ...speaker.Option) Option {
	return func(s *Session) {
		s.resolverOpts = opts
	}
}

// WithStateOptions configures the per-session speaker memory.
func WithStateOptions(opts ...speaker.StateOption) Option {
	return func(s *Session) {
		s.stateOpts = opts
	}
}

// WithCacheOptions configures the translation cache.
func WithCacheOptions(opts ...memo.Option) Option {
	return func(s *Session) {
		s.cacheOpts = opts
	}
}

// WithCutsceneOptions configures the cutscene detector.
func WithCutsceneOptions(opts ...cutscene.Option) Option {
	return func(s *Session) {
		s.cutsceneOpts = opts
	}
}

// WithClassifyOptions configures the line classifier. The character
// database is always added as the classifier's known-name set.
func WithClassifyOptions(opts ...classify.Option) Option {
	return func(s *Session) {
		s.classifyOpts = opts
	}
}

// Session is one translation session. All exported methods are safe for
// concurrent use.
type Session struct {
	id        string
	load      Loader
	learned   character.LearnedStore
	metrics   *observe.Metrics
	startedAt time.Time

	minConfidence  float64
	similarityOpts []similarity.Option
	resolverOpts   []speaker.Option
	stateOpts      []speaker.StateOption
	cacheOpts      []memo.Option
	cutsceneOpts   []cutscene.Option
	classifyOpts   []classify.Option

	mu         sync.Mutex
	db         *character.Database
	lastReload time.Time
	classifier *classify.Classifier
	detector   *cutscene.Detector
	resolver   *speaker.Resolver
	cache      *memo.Cache
	state      *speaker.State
}

// New creates a session and loads the character database. A load failure
// is returned wrapped in [character.ErrDatabaseLoad]; the session cannot
// resolve speakers without it.
func New(ctx context.Context, load Loader, opts ...Option) (*Session, error) {
	if load == nil {
		return nil, errors.New("session: loader must not be nil")
	}
	s := &Session{
		id:            uuid.NewString(),
		load:          load,
		startedAt:     time.Now().UTC(),
		minConfidence: defaultMinPromotionConfidence,
	}
	for _, o := range opts {
		o(s)
	}

	db, err := s.loadDatabase(ctx)
	if err != nil {
		return nil, err
	}
	s.cache = memo.New(append([]memo.Option{memo.WithMetrics(s.metrics)}, s.cacheOpts...)...)
	s.state = speaker.NewState(s.stateOpts...)
	s.install(db)

	slog.Info("session: started", "id", s.id, "game", db.Game(), "characters", db.Len())
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Database returns the current character database snapshot.
func (s *Session) Database() *character.Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// loadDatabase reads the character file and the learned names. It does not
// touch session state and may run without holding s.mu.
func (s *Session) loadDatabase(ctx context.Context) (*character.Database, error) {
	f, err := s.load(ctx)
	if err != nil {
		if errors.Is(err, character.ErrDatabaseLoad) {
			return nil, fmt.Errorf("session: %w", err)
		}
		return nil, fmt.Errorf("session: %w: %w", character.ErrDatabaseLoad, err)
	}

	var learned []character.LearnedName
	if s.learned != nil {
		learned, err = s.learned.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("session: %w: list learned names: %w", character.ErrDatabaseLoad, err)
		}
	}
	return f.Build(learned), nil
}

// install swaps in db and rebuilds every component bound to it. Must be
// called with s.mu held (or before the session is shared).
func (s *Session) install(db *character.Database) {
	s.db = db
	s.lastReload = time.Now().UTC()

	engine := similarity.New(s.similarityOpts...)
	s.resolver = speaker.NewResolver(db, engine, s.resolverOpts...)
	s.classifier = classify.New(append([]classify.Option{classify.WithNames(db)}, s.classifyOpts...)...)
	s.detector = cutscene.New(s.cutsceneOpts...)
}

// ─── Pipeline ───────────────────────────────────────────────────────────────

// Process runs the whole pipeline over one OCR sample: classification, the
// cutscene detector for text the classifier left as narration, and speaker
// resolution for character lines. It never fails; malformed input yields an
// empty Normal line.
func (s *Session) Process(ctx context.Context, raw string) dialogue.DialogueLine {
	ctx, span := observe.StartSpan(ctx, "session.Process")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	line := s.classifier.Classify(raw)

	if line.Type == dialogue.TypeNormal && !line.Empty && !line.Deferred {
		if res, ok := s.detector.Detect(raw); ok {
			line.Type = dialogue.TypeCharacter
			line.SpeakerCandidate = res.Speaker
			line.Content = res.Content
			line.Separator = "cutscene:" + string(res.Format)
		}
	}

	if line.Type == dialogue.TypeCharacter {
		candidate := line.SpeakerCandidate
		if line.Speaker != nil && line.Speaker.IsMystery() {
			candidate = dialogue.MysteryName
		}
		sp := s.resolver.Resolve(candidate, s.state)
		line = line.WithSpeaker(sp)
		span.SetAttributes(
			observe.AttrSpeaker.String(sp.Name),
			observe.AttrSpeakerKind.String(string(sp.Kind)),
		)
		s.metrics.RecordResolution(ctx, string(sp.Kind), sp.Match)
	}

	span.SetAttributes(observe.AttrLineType.String(string(line.Type)))
	s.metrics.RecordProcess(ctx, string(line.Type), time.Since(start).Seconds())
	return line
}

// Classify classifies raw without resolving the speaker or touching
// session state.
func (s *Session) Classify(raw string) dialogue.DialogueLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.Classify(raw)
}

// Resolve binds a speaker candidate and records the sighting.
func (s *Session) Resolve(ctx context.Context, candidate string) dialogue.ResolvedSpeaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.resolver.Resolve(candidate, s.state)
	s.metrics.RecordResolution(ctx, string(sp.Kind), sp.Match)
	return sp
}

// DetectCutscene runs the cutscene detector alone.
func (s *Session) DetectCutscene(text string) (cutscene.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.Detect(text)
}

// ─── Cache ──────────────────────────────────────────────────────────────────

// CacheGet returns the memoized translation of line. Lines that are not
// translatable always miss.
func (s *Session) CacheGet(line dialogue.DialogueLine) (string, bool) {
	if !line.Translatable() {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(line.Content, line.Speaker.CacheTag(), string(line.Type))
}

// CachePut memoizes translation for line. Untranslatable lines and empty
// translations are ignored.
func (s *Session) CachePut(line dialogue.DialogueLine, translation string) {
	if !line.Translatable() || translation == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Put(line.Content, translation, line.Speaker.CacheTag(), string(line.Type))
}

// StyleHints returns the speaking-style metadata for sp. Provisional and
// mystery speakers carry only their name.
func (s *Session) StyleHints(sp *dialogue.ResolvedSpeaker) StyleHints {
	if sp == nil {
		return StyleHints{}
	}
	h := StyleHints{Speaker: sp.Name}
	if rec := sp.Record; rec != nil {
		h.Role = string(rec.Role)
		h.Relationship = rec.Relationship
		h.Style = rec.Style
		h.Gender = rec.Gender
	}
	return h
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ID:                s.id,
		Game:              s.db.Game(),
		Characters:        s.db.Len(),
		StartedAt:         s.startedAt,
		LastReload:        s.lastReload,
		Cache:             s.cache.Stats(),
		Speakers:          s.state.Entries(),
		PendingPromotions: s.state.Pending(),
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Reload re-reads the character database and learned names, then swaps in
// the new snapshot and clears the cache and speaker memory in one step. On
// failure the previous snapshot and all session state are kept.
func (s *Session) Reload(ctx context.Context) (character.DatabaseDiff, error) {
	db, err := s.loadDatabase(ctx)
	if err != nil {
		s.metrics.RecordReload(ctx, "error")
		slog.Error("session: reload failed, keeping previous database", "id", s.id, "err", err)
		return character.DatabaseDiff{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	diff := character.Diff(s.db, db)
	s.install(db)
	s.cache.Clear()
	s.state.Clear()
	s.metrics.RecordReload(ctx, "ok")

	slog.Info("session: character database reloaded",
		"id", s.id,
		"characters", db.Len(),
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"changed", len(diff.Changed),
		"corrections_changed", diff.CorrectionsChanged,
	)
	return diff, nil
}

// Reconfigure applies opts and rebuilds the session's components over the
// current database snapshot. The cache and speaker memory are recreated, so
// this clears the session; queued promotion candidates carry over to the
// new speaker memory.
func (s *Session) Reconfigure(opts ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range opts {
		o(s)
	}
	pending := s.state.DrainPromotions()
	s.cache = memo.New(append([]memo.Option{memo.WithMetrics(s.metrics)}, s.cacheOpts...)...)
	s.state = speaker.NewState(s.stateOpts...)
	s.state.Requeue(pending...)
	s.install(s.db)
	slog.Info("session: reconfigured", "id", s.id, "pending_promotions", len(pending))
}

// ClearSession drops all memoized translations, speaker memory and pending
// promotions, keeping the character database.
func (s *Session) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
	s.state.Clear()
	slog.Info("session: cleared", "id", s.id)
}

// FlushPromotions persists the queued promotion candidates to the
// learned-names store and makes them known speakers of the current
// snapshot. Candidates below the minimum confidence are discarded; failed
// writes are queued again and reported in the returned error. It returns
// the number of names persisted.
func (s *Session) FlushPromotions(ctx context.Context) (int, error) {
	if s.learned == nil {
		return 0, nil
	}

	s.mu.Lock()
	candidates := s.state.DrainPromotions()
	s.mu.Unlock()
	if len(candidates) == 0 {
		return 0, nil
	}

	var (
		saved  []character.LearnedName
		failed []speaker.Candidate
		errs   []error
	)
	for _, c := range candidates {
		if c.Confidence() < s.minConfidence {
			slog.Debug("session: promotion candidate below confidence", "name", c.Name, "confidence", c.Confidence())
			s.metrics.RecordPromotion(ctx, "skipped")
			continue
		}
		ln := c.LearnedName()
		if err := s.learned.Save(ctx, ln); err != nil {
			failed = append(failed, c)
			errs = append(errs, fmt.Errorf("session: save learned name %q: %w", c.Name, err))
			s.metrics.RecordPromotion(ctx, "error")
			continue
		}
		saved = append(saved, ln)
		s.metrics.RecordPromotion(ctx, "ok")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(failed) > 0 {
		s.state.Requeue(failed...)
	}
	if len(saved) > 0 {
		s.db = s.db.WithLearned(saved...)
		engine := similarity.New(s.similarityOpts...)
		s.resolver = speaker.NewResolver(s.db, engine, s.resolverOpts...)
		s.classifier = classify.New(append([]classify.Option{classify.WithNames(s.db)}, s.classifyOpts...)...)
		slog.Info("session: promoted learned names", "id", s.id, "count", len(saved))
	}
	return len(saved), errors.Join(errs...)
}

// Close flushes pending promotions and closes the learned-names store.
func (s *Session) Close(ctx context.Context) error {
	_, flushErr := s.FlushPromotions(ctx)
	var closeErr error
	if s.learned != nil {
		closeErr = s.learned.Close()
	}
	return errors.Join(flushErr, closeErr)
}
