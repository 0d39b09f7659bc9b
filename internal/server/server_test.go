package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lorelens/internal/character"
	charmock "github.com/MrWong99/lorelens/internal/character/mock"
	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/health"
	"github.com/MrWong99/lorelens/internal/resilience"
	"github.com/MrWong99/lorelens/internal/server"
	"github.com/MrWong99/lorelens/internal/session"
	"github.com/MrWong99/lorelens/internal/translate"
	trmock "github.com/MrWong99/lorelens/internal/translate/mock"
)

func newSession(t *testing.T, opts ...session.Option) *session.Session {
	t.Helper()
	f := &character.File{
		Game: "Final Fantasy VII",
		Characters: []character.Record{
			{Name: "Cloud", Role: character.RoleMain},
			{Name: "Tifa", Role: character.RoleMain},
			{Name: "Aerith", Role: character.RoleMain},
		},
	}
	s, err := session.New(context.Background(), session.StaticLoader(f), opts...)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return v
}

func TestClassifyAndProcess(t *testing.T) {
	t.Parallel()
	h := server.New(newSession(t)).Handler()

	rec := do(t, h, "POST", "/v1/classify", `{"text": "Cloud: Let's mosey."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("classify status = %d: %s", rec.Code, rec.Body)
	}
	line := decodeBody[dialogue.DialogueLine](t, rec)
	if line.Type != dialogue.TypeCharacter || line.Content != "Let's mosey." || line.Speaker != nil {
		t.Errorf("classify line = %+v", line)
	}

	rec = do(t, h, "POST", "/v1/process", `{"text": "Cloud: Let's mosey."}`)
	line = decodeBody[dialogue.DialogueLine](t, rec)
	if line.Speaker == nil || line.Speaker.Name != "Cloud" || line.Speaker.Kind != dialogue.SpeakerKnown {
		t.Errorf("process speaker = %+v", line.Speaker)
	}
}

func TestCutscene(t *testing.T) {
	t.Parallel()
	h := server.New(newSession(t)).Handler()

	rec := do(t, h, "POST", "/v1/cutscene", `{"text": "Aerith\nYou came back for me."}`)
	var got struct {
		Detected bool `json:"detected"`
		Result   struct {
			Speaker string `json:"speaker"`
			Format  string `json:"format"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Detected || got.Result.Speaker != "Aerith" || got.Result.Format != "two_line" {
		t.Errorf("cutscene = %+v", got)
	}

	rec = do(t, h, "POST", "/v1/cutscene", `{"text": "The wind blows."}`)
	if !strings.Contains(rec.Body.String(), `"detected":false`) {
		t.Errorf("plain narration detected as cutscene: %s", rec.Body)
	}
}

func TestCacheRoutes(t *testing.T) {
	t.Parallel()
	h := server.New(newSession(t)).Handler()

	body := `{"content": "興味ないね", "speaker": "Cloud", "type": "character"}`
	rec := do(t, h, "POST", "/v1/cache/lookup", body)
	if got := decodeBody[map[string]any](t, rec); got["hit"] != false {
		t.Errorf("lookup before put = %v", got)
	}

	rec = do(t, h, "POST", "/v1/cache", `{"content": "興味ないね", "speaker": "Cloud", "type": "character", "translation": "Not interested."}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, "POST", "/v1/cache/lookup", body)
	got := decodeBody[map[string]any](t, rec)
	if got["hit"] != true || got["translation"] != "Not interested." {
		t.Errorf("lookup after put = %v", got)
	}

	// Another speaker is a different key.
	rec = do(t, h, "POST", "/v1/cache/lookup", `{"content": "興味ないね", "speaker": "Tifa", "type": "character"}`)
	if got := decodeBody[map[string]any](t, rec); got["hit"] != false {
		t.Errorf("lookup for other speaker = %v", got)
	}

	rec = do(t, h, "POST", "/v1/cache", `{"content": "x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("put without translation status = %d", rec.Code)
	}
	rec = do(t, h, "POST", "/v1/cache", `{"content": "x", "translation": "y", "type": "poem"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("put with unknown type status = %d", rec.Code)
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		h := server.New(newSession(t)).Handler()
		rec := do(t, h, "POST", "/v1/translate", `{"text": "Cloud: 行くぞ"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("translated then cached", func(t *testing.T) {
		t.Parallel()
		sess := newSession(t)
		tr := &trmock.Translator{Responses: []string{"Let's go."}}
		h := server.New(sess, server.WithTranslator(translate.NewService(sess, tr), nil)).Handler()

		rec := do(t, h, "POST", "/v1/translate", `{"text": "Cloud: 行くぞ"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		res := decodeBody[translate.Result](t, rec)
		if res.Translation != "Let's go." || res.Cached {
			t.Errorf("first result = %+v", res)
		}

		rec = do(t, h, "POST", "/v1/translate", `{"text": "Cloud: 行くぞ"}`)
		if res := decodeBody[translate.Result](t, rec); !res.Cached {
			t.Errorf("second result = %+v, want cached", res)
		}
	})

	t.Run("nothing to translate", func(t *testing.T) {
		t.Parallel()
		sess := newSession(t)
		tr := &trmock.Translator{}
		h := server.New(sess, server.WithTranslator(translate.NewService(sess, tr), nil)).Handler()

		rec := do(t, h, "POST", "/v1/translate", `{"text": "   "}`)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if res := decodeBody[translate.Result](t, rec); !res.Line.Empty {
			t.Errorf("line = %+v, want empty", res.Line)
		}
	})

	t.Run("all backends down", func(t *testing.T) {
		t.Parallel()
		sess := newSession(t)
		fb := translate.NewFallback(&trmock.Translator{Errors: []error{errors.New("503")}}, "openai",
			resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}}, nil)
		svc := translate.NewService(sess, fb, translate.WithRetryPolicy(translate.RetryPolicy{MaxAttempts: 1}))
		h := server.New(sess, server.WithTranslator(svc, fb)).Handler()

		rec := do(t, h, "POST", "/v1/translate", `{"text": "Cloud: 行くぞ"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503: %s", rec.Code, rec.Body)
		}

		rec = do(t, h, "GET", "/v1/backends", "")
		statuses := decodeBody[[]resilience.BackendStatus](t, rec)
		if len(statuses) != 1 || statuses[0].Name != "openai" || statuses[0].State != "open" {
			t.Errorf("backends = %+v", statuses)
		}

		if rec = do(t, h, "POST", "/v1/backends/deepl/reset", ""); rec.Code != http.StatusNotFound {
			t.Errorf("reset unknown backend = %d, want 404", rec.Code)
		}
		if rec = do(t, h, "POST", "/v1/backends/openai/reset", ""); rec.Code != http.StatusNoContent {
			t.Errorf("reset = %d, want 204: %s", rec.Code, rec.Body)
		}
		rec = do(t, h, "GET", "/v1/backends", "")
		if statuses = decodeBody[[]resilience.BackendStatus](t, rec); statuses[0].State != "closed" {
			t.Errorf("after reset state = %q, want closed", statuses[0].State)
		}
	})
}

func TestSessionRoutes(t *testing.T) {
	t.Parallel()
	store := &charmock.LearnedStore{ListResult: []character.LearnedName{{Name: "Zack", Confidence: 0.8}}}
	sess := newSession(t, session.WithLearnedStore(store))
	h := server.New(sess, server.WithLearnedStore(store)).Handler()

	do(t, h, "POST", "/v1/process", `{"text": "Tifa: Cloud!"}`)

	rec := do(t, h, "GET", "/v1/stats", "")
	stats := decodeBody[session.Stats](t, rec)
	if stats.Game != "Final Fantasy VII" || stats.Characters != 4 || len(stats.Speakers) != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec = do(t, h, "POST", "/v1/reload", "")
	if rec.Code != http.StatusOK {
		t.Errorf("reload status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, "POST", "/v1/session/clear", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("clear status = %d", rec.Code)
	}

	rec = do(t, h, "POST", "/v1/promotions/flush", "")
	if got := decodeBody[map[string]int](t, rec); got["saved"] != 0 {
		t.Errorf("flush = %v", got)
	}

	rec = do(t, h, "GET", "/v1/learned", "")
	names := decodeBody[[]character.LearnedName](t, rec)
	if len(names) != 1 || names[0].Name != "Zack" {
		t.Errorf("learned = %+v", names)
	}
}

func TestLearnedStoreFailure(t *testing.T) {
	t.Parallel()
	store := &charmock.LearnedStore{}
	sess := newSession(t, session.WithLearnedStore(store))
	store.ListError = errors.New("connection refused")
	h := server.New(sess, server.WithLearnedStore(store)).Handler()

	rec := do(t, h, "GET", "/v1/learned", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()
	h := server.New(newSession(t)).Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed json", "POST", "/v1/classify", `{"text": `, http.StatusBadRequest},
		{"unknown field", "POST", "/v1/process", `{"txt": "Cloud: hi"}`, http.StatusBadRequest},
		{"wrong method", "GET", "/v1/classify", "", http.StatusMethodNotAllowed},
		{"unknown route", "GET", "/v1/nothing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	sess := newSession(t)
	hh := health.New(health.CharactersChecker(func() int { return sess.Stats().Characters }))
	prom := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# HELP lorelens_up\n")
	})
	h := server.New(sess, server.WithHealth(hh), server.WithMetrics(nil, prom)).Handler()

	if rec := do(t, h, "GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d: %s", rec.Code, rec.Body)
	}
	rec := do(t, h, "GET", "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "lorelens_up") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body)
	}
}
