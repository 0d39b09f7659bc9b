package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// AnyLLMVendors lists the vendor names accepted in [BackendConfig.LLM].
var AnyLLMVendors = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is [LoadFromReader] over an in-memory document.
func Parse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Characters
	if cfg.Characters.ReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("characters.reload_interval %s must not be negative", cfg.Characters.ReloadInterval))
	}
	if cfg.Characters.ReloadInterval > 0 && cfg.Characters.Path == "" {
		errs = append(errs, errors.New("characters.reload_interval is set but characters.path is empty"))
	}

	// Learned names
	if cfg.Learned.Backend != "" && !cfg.Learned.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("learned.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Learned.Backend))
	}
	if (cfg.Learned.Backend == LearnedSQLite || cfg.Learned.Backend == LearnedPostgres) && cfg.Learned.DSN == "" {
		errs = append(errs, fmt.Errorf("learned.dsn is required when learned.backend is %s", cfg.Learned.Backend))
	}
	errs = appendRange(errs, "learned.min_confidence", cfg.Learned.MinConfidence, 0, 1)
	if cfg.Learned.FlushInterval < 0 {
		errs = append(errs, fmt.Errorf("learned.flush_interval %s must not be negative", cfg.Learned.FlushInterval))
	}

	// Similarity
	errs = appendRange(errs, "similarity.weighted_threshold", cfg.Similarity.WeightedThreshold, 0, 1)
	errs = appendRange(errs, "similarity.fuzzy_threshold", cfg.Similarity.FuzzyThreshold, 0, 1)
	errs = appendRange(errs, "similarity.recent_known_threshold", cfg.Similarity.RecentKnownThreshold, 0, 1)
	if cfg.Similarity.NGramSize < 0 {
		errs = append(errs, fmt.Errorf("similarity.ngram_size %d must not be negative", cfg.Similarity.NGramSize))
	}

	// Speakers
	if cfg.Speakers.MaxTracked < 0 {
		errs = append(errs, fmt.Errorf("speakers.max_tracked %d must not be negative", cfg.Speakers.MaxTracked))
	}
	if cfg.Speakers.PromotionThreshold < 0 {
		errs = append(errs, fmt.Errorf("speakers.promotion_threshold %d must not be negative", cfg.Speakers.PromotionThreshold))
	}
	if cfg.Speakers.PromotionMinAge < 0 {
		errs = append(errs, fmt.Errorf("speakers.promotion_min_age %s must not be negative", cfg.Speakers.PromotionMinAge))
	}

	// Cutscene
	errs = appendRange(errs, "cutscene.min_confidence", cfg.Cutscene.MinConfidence, 0, 1)

	// Cache
	if cfg.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl %s must not be negative", cfg.Cache.TTL))
	}
	if cfg.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("cache.capacity %d must not be negative", cfg.Cache.Capacity))
	}
	if cfg.Cache.EvictFraction < 0 || cfg.Cache.EvictFraction > 1 {
		errs = append(errs, fmt.Errorf("cache.evict_fraction %.2f is out of range (0, 1]", cfg.Cache.EvictFraction))
	}

	errs = append(errs, validateTranslate(&cfg.Translate)...)

	return errors.Join(errs...)
}

func validateTranslate(t *TranslateConfig) []error {
	var errs []error

	if t.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("translate.max_attempts %d must not be negative", t.MaxAttempts))
	}
	errs = appendRange(errs, "translate.base_temperature", t.BaseTemperature, 0, 2)
	errs = appendRange(errs, "translate.base_top_p", t.BaseTopP, 0, 1)
	if t.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("translate.breaker.max_failures %d must not be negative", t.Breaker.MaxFailures))
	}

	namesSeen := make(map[string]int, len(t.Backends))
	for i, b := range t.Backends {
		prefix := fmt.Sprintf("translate.backends[%d]", i)
		if prev, ok := namesSeen[b.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of translate.backends[%d]", prefix, b.Name, prev))
		}
		namesSeen[b.Name] = i

		if !b.Provider.IsValid() {
			errs = append(errs, fmt.Errorf("%s.provider %q is invalid; valid values: openai, anyllm", prefix, b.Provider))
		}
		if b.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
		if b.Provider == ProviderOpenAI && b.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for the openai provider when OPENAI_API_KEY is unset", prefix))
		}
		if b.Provider == ProviderAnyLLM {
			switch {
			case b.LLM == "":
				errs = append(errs, fmt.Errorf("%s.llm is required for the anyllm provider", prefix))
			case !slices.Contains(AnyLLMVendors, strings.ToLower(b.LLM)):
				errs = append(errs, fmt.Errorf("%s.llm %q is invalid; valid values: %s", prefix, b.LLM, strings.Join(AnyLLMVendors, ", ")))
			}
		}
		if b.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, b.Timeout))
		}
	}

	if len(t.Backends) == 0 {
		slog.Warn("config: no translate.backends configured; translation is disabled")
	}
	return errs
}

// appendRange appends an error when v lies outside [lo, hi].
func appendRange(errs []error, field string, v, lo, hi float64) []error {
	if v < lo || v > hi {
		errs = append(errs, fmt.Errorf("%s %.2f is out of range [%g, %g]", field, v, lo, hi))
	}
	return errs
}
