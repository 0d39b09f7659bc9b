// Package app wires all lorelens subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API and the background loops (file
// watchers, promotion flushing), and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithLearnedStore,
// WithBackend, WithLoader). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/character/pgstore"
	"github.com/MrWong99/lorelens/internal/character/sqlitestore"
	"github.com/MrWong99/lorelens/internal/config"
	"github.com/MrWong99/lorelens/internal/cutscene"
	"github.com/MrWong99/lorelens/internal/health"
	"github.com/MrWong99/lorelens/internal/memo"
	"github.com/MrWong99/lorelens/internal/observe"
	"github.com/MrWong99/lorelens/internal/resilience"
	"github.com/MrWong99/lorelens/internal/server"
	"github.com/MrWong99/lorelens/internal/session"
	"github.com/MrWong99/lorelens/internal/similarity"
	"github.com/MrWong99/lorelens/internal/speaker"
	"github.com/MrWong99/lorelens/internal/translate"
	"github.com/MrWong99/lorelens/internal/translate/anyllm"
	"github.com/MrWong99/lorelens/internal/translate/openai"
	"github.com/MrWong99/lorelens/internal/watch"
)

const (
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second

	// configPollInterval is how often the config file is checked for edits.
	configPollInterval = 5 * time.Second
)

// Backend is a named translation backend injected with [WithBackend].
type Backend struct {
	Name       string
	Translator translate.Translator
}

// pinger is implemented by learned-name stores with a reachable server.
type pinger interface {
	Ping(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	configPath string
	levelVar   *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	learned    character.LearnedStore
	loader     session.Loader
	sess       *session.Session
	backends   []Backend
	fallback   *translate.Fallback
	translator *translate.Service
	metrics    *observe.Metrics
	promHTTP   http.Handler
	health     *health.Handler
	server     *server.Server
	listener   net.Listener

	// mu guards charPath and charWatcher, both replaced on config reload.
	mu          sync.Mutex
	charPath    string
	charWatcher *watch.Watcher[*character.File]

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLearnedStore injects a learned-names store instead of creating one
// from config.
func WithLearnedStore(s character.LearnedStore) Option {
	return func(a *App) { a.learned = s }
}

// WithBackend injects a translation backend. Injected backends replace the
// ones in config.
func WithBackend(name string, t translate.Translator) Option {
	return func(a *App) { a.backends = append(a.backends, Backend{Name: name, Translator: t}) }
}

// WithLoader replaces the file loader for the character database.
func WithLoader(l session.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithConfigPath enables hot reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLevelVar lets config reloads change the level of the process logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithMetrics records metrics in m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promHTTP = h }
}

// WithListener serves on l instead of listening on the configured address.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: learned-names store
// connection, character database load, translation backend construction and
// HTTP route assembly.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, charPath: cfg.Characters.Path}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.promHTTP == nil {
		a.promHTTP = promhttp.Handler()
	}
	if a.levelVar == nil {
		a.levelVar = new(slog.LevelVar)
		a.levelVar.Set(SlogLevel(cfg.Server.LogLevel))
	}

	// ── 1. Learned-names store ───────────────────────────────────────────
	if err := a.initLearned(ctx); err != nil {
		return nil, fmt.Errorf("app: init learned store: %w", err)
	}

	// ── 2. Session ───────────────────────────────────────────────────────
	if err := a.initSession(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 3. Translation ───────────────────────────────────────────────────
	if err := a.initTranslate(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init translate: %w", err)
	}

	// ── 4. Health + HTTP ─────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initLearned opens the configured learned-names store unless one was
// injected.
func (a *App) initLearned(ctx context.Context) error {
	if a.learned != nil {
		return nil
	}

	lc := a.cfg.Learned
	switch lc.Backend {
	case config.LearnedSQLite:
		s, err := sqlitestore.Open(ctx, lc.DSN)
		if err != nil {
			return err
		}
		a.learned = s
	case config.LearnedPostgres:
		s, err := pgstore.Connect(ctx, lc.DSN)
		if err != nil {
			return err
		}
		a.learned = s
	default:
		a.learned = character.NewMemLearnedStore()
	}
	slog.Info("app: learned-names store ready", "backend", lc.Backend)
	return nil
}

// initSession loads the character database and builds the session.
func (a *App) initSession(ctx context.Context) error {
	if a.loader == nil {
		a.loader = a.fileLoader
	}
	opts := append([]session.Option{
		session.WithLearnedStore(a.learned),
		session.WithMetrics(a.metrics),
	}, SessionOptions(a.cfg)...)

	sess, err := session.New(ctx, a.loader, opts...)
	if err != nil {
		return err
	}
	a.sess = sess
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return sess.Close(ctx)
	})
	return nil
}

// fileLoader reads the character database from the current path.
func (a *App) fileLoader(context.Context) (*character.File, error) {
	a.mu.Lock()
	path := a.charPath
	a.mu.Unlock()
	if path == "" {
		return nil, fmt.Errorf("%w: characters.path is not set", character.ErrDatabaseLoad)
	}
	return character.LoadFile(path)
}

// initTranslate builds the backend fallback chain and the service. No
// backends leaves translation disabled.
func (a *App) initTranslate() error {
	if len(a.backends) == 0 {
		for _, bc := range a.cfg.Translate.Backends {
			t, err := BuildBackend(bc)
			if err != nil {
				return fmt.Errorf("backend %q: %w", bc.Name, err)
			}
			a.backends = append(a.backends, Backend{Name: bc.Name, Translator: t})
			slog.Info("app: translation backend created", "name", bc.Name, "provider", bc.Provider, "model", bc.Model)
		}
	}
	if len(a.backends) == 0 {
		slog.Warn("app: no translation backends configured, /v1/translate is disabled")
		return nil
	}

	tc := a.cfg.Translate
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  tc.Breaker.MaxFailures,
			ResetTimeout: tc.Breaker.ResetTimeout,
			HalfOpenMax:  tc.Breaker.HalfOpenMax,
		},
	}
	a.fallback = translate.NewFallback(a.backends[0].Translator, a.backends[0].Name, fbCfg, a.metrics)
	for _, b := range a.backends[1:] {
		a.fallback.AddFallback(b.Name, b.Translator)
	}
	a.translator = translate.NewService(a.sess, a.fallback, ServiceOptions(a.cfg)...)
	return nil
}

// initServer assembles the health checks and HTTP routes.
func (a *App) initServer() {
	checkers := []health.Checker{
		health.CharactersChecker(func() int { return a.sess.Database().Len() }),
	}
	if p, ok := a.learned.(pinger); ok {
		checkers = append(checkers, health.PingChecker("learned", p.Ping))
	}
	opts := []server.Option{
		server.WithLearnedStore(a.learned),
		server.WithMetrics(a.metrics, a.promHTTP),
	}
	if a.translator != nil {
		checkers = append(checkers, health.BackendsChecker(a.fallback.Available))
		opts = append(opts, server.WithTranslator(a.translator, a.fallback))
	}
	a.health = health.New(checkers...)
	opts = append(opts, server.WithHealth(a.health))
	a.server = server.New(a.sess, opts...)
}

// ─── Config mapping ──────────────────────────────────────────────────────────

// SessionOptions maps the pipeline sections of cfg to session options.
func SessionOptions(cfg *config.Config) []session.Option {
	return []session.Option{
		session.WithMinPromotionConfidence(cfg.Learned.MinConfidence),
		session.WithSimilarityOptions(
			similarity.WithWeightedThreshold(cfg.Similarity.WeightedThreshold),
			similarity.WithNGramSize(cfg.Similarity.NGramSize),
		),
		session.WithResolverOptions(
			speaker.WithFuzzyThreshold(cfg.Similarity.FuzzyThreshold),
			speaker.WithRecentKnownThreshold(cfg.Similarity.RecentKnownThreshold),
		),
		session.WithStateOptions(
			speaker.WithCapacity(cfg.Speakers.MaxTracked),
			speaker.WithPromotionThreshold(cfg.Speakers.PromotionThreshold),
			speaker.WithPromotionMinAge(cfg.Speakers.PromotionMinAge),
		),
		session.WithCacheOptions(
			memo.WithTTL(cfg.Cache.TTL),
			memo.WithCapacity(cfg.Cache.Capacity),
			memo.WithEvictFraction(cfg.Cache.EvictFraction),
		),
		session.WithCutsceneOptions(cutscene.WithMinConfidence(cfg.Cutscene.MinConfidence)),
	}
}

// ServiceOptions maps the retry policy and target language of cfg.
func ServiceOptions(cfg *config.Config) []translate.ServiceOption {
	tc := cfg.Translate
	return []translate.ServiceOption{
		translate.WithTargetLanguage(tc.TargetLanguage),
		translate.WithRetryPolicy(translate.RetryPolicy{
			MaxAttempts:     tc.MaxAttempts,
			BaseTemperature: tc.BaseTemperature,
			TemperatureStep: tc.TemperatureStep,
			BaseTopP:        tc.BaseTopP,
			TopPStep:        tc.TopPStep,
		}),
	}
}

// BuildBackend constructs the translation backend described by bc. An empty
// API key falls back to the vendor's environment variable.
func BuildBackend(bc config.BackendConfig) (translate.Translator, error) {
	switch bc.Provider {
	case config.ProviderOpenAI:
		apiKey := bc.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []openai.Option
		if bc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(bc.BaseURL))
		}
		if bc.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(bc.Timeout))
		}
		if bc.MaxTokens > 0 {
			opts = append(opts, openai.WithMaxTokens(bc.MaxTokens))
		}
		return openai.New(apiKey, bc.Model, opts...)

	case config.ProviderAnyLLM:
		var opts []anyllmlib.Option
		if bc.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(bc.APIKey))
		}
		if bc.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(bc.BaseURL))
		}
		t, err := anyllm.New(bc.LLM, bc.Model, opts...)
		if err != nil {
			return nil, err
		}
		if bc.MaxTokens > 0 {
			t = t.WithMaxTokens(bc.MaxTokens)
		}
		return withTimeout(t, bc.Timeout), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", bc.Provider)
	}
}

// withTimeout bounds every call to t by d. Zero leaves t unchanged.
func withTimeout(t translate.Translator, d time.Duration) translate.Translator {
	if d <= 0 {
		return t
	}
	return translate.TranslatorFunc(func(ctx context.Context, req translate.Request) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return t.Translate(ctx, req)
	})
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Session returns the running session.
func (a *App) Session() *session.Session { return a.sess }

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and the background loops and blocks until ctx is
// cancelled or the listener fails. On cancellation the HTTP server is shut
// down gracefully and Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("app: serving HTTPS", "addr", ln.Addr().String())
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("app: serving HTTP", "addr", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.mu.Lock()
	charPath := a.charPath
	a.mu.Unlock()
	if err := a.startCharacterWatch(charPath); err != nil {
		slog.Warn("app: character database watch disabled", "err", err)
	}
	defer a.stopCharacterWatch()

	if a.configPath != "" {
		cw, err := config.NewWatcher(a.configPath, a.applyConfig, watch.WithInterval(configPollInterval))
		if err != nil {
			slog.Warn("app: config hot reload disabled", "path", a.configPath, "err", err)
		} else {
			defer cw.Stop()
		}
	}

	if every := a.cfg.Learned.FlushInterval; every > 0 {
		g.Go(func() error {
			a.flushLoop(gctx, every)
			return nil
		})
	}

	slog.Info("app running", "session", a.sess.ID(), "backends", len(a.backends))
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// flushLoop persists promotion candidates every interval until ctx is done.
func (a *App) flushLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.sess.FlushPromotions(ctx)
			if err != nil {
				slog.Warn("app: promotion flush incomplete", "saved", n, "err", err)
			} else if n > 0 {
				slog.Info("app: promotions flushed", "saved", n)
			}
		}
	}
}

// startCharacterWatch polls path and reloads the session on every valid
// edit. A zero reload interval disables it.
func (a *App) startCharacterWatch(path string) error {
	every := a.cfg.Characters.ReloadInterval
	if every <= 0 || path == "" {
		return nil
	}
	format := character.FormatForPath(path)
	w, err := watch.New(path, func(data []byte) (*character.File, error) {
		return character.Parse(data, format)
	}, func(_, _ *character.File) {
		a.reloadCharacters("file changed")
	}, watch.WithInterval(every))
	if err != nil {
		return err
	}

	a.mu.Lock()
	old := a.charWatcher
	a.charWatcher = w
	a.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	return nil
}

func (a *App) stopCharacterWatch() {
	a.mu.Lock()
	w := a.charWatcher
	a.charWatcher = nil
	a.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// reloadCharacters reloads the session database and logs the outcome.
func (a *App) reloadCharacters(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	diff, err := a.sess.Reload(ctx)
	if err != nil {
		slog.Error("app: character reload failed, keeping previous database", "reason", reason, "err", err)
		return
	}
	slog.Info("app: character database reloaded", "reason", reason,
		"added", len(diff.Added), "removed", len(diff.Removed), "changed", len(diff.Changed))
}

// applyConfig applies the hot-reloadable part of a config change.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.IsZero() {
		return
	}

	if d.LogLevelChanged {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.PipelineChanged {
		a.sess.Reconfigure(SessionOptions(new)...)
	}
	if d.RetryChanged && a.translator != nil {
		a.translator.Reconfigure(ServiceOptions(new)...)
		slog.Info("app: retry policy updated", "max_attempts", new.Translate.MaxAttempts, "target_language", new.Translate.TargetLanguage)
	}
	if d.CharactersChanged {
		a.mu.Lock()
		a.charPath = new.Characters.Path
		a.mu.Unlock()
		a.reloadCharacters("path changed")
		if err := a.startCharacterWatch(new.Characters.Path); err != nil {
			slog.Warn("app: character database watch disabled", "err", err)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes require a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown flushes pending promotions and closes all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New opened before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	if a.sess == nil && a.learned != nil {
		_ = a.learned.Close()
	}
}
