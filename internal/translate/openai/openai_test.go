package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/translate"
)

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestBuildParams(t *testing.T) {
	tr, err := New("sk-test", "gpt-4o-mini", WithMaxTokens(256))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := tr.buildParams(translate.Request{
		Content: "興味ないね",
		Speaker: "Cloud",
		Type:    dialogue.TypeCharacter,
		Params:  translate.Params{Temperature: 0.5, TopP: 0.85},
	})

	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil || params.Messages[1].OfUser == nil {
		t.Fatalf("messages = %+v, want system then user", params.Messages)
	}
	if got := params.Temperature.Value; got != 0.5 {
		t.Errorf("temperature = %v, want 0.5", got)
	}
	if got := params.TopP.Value; got != 0.85 {
		t.Errorf("top_p = %v, want 0.85", got)
	}
	if got := params.MaxCompletionTokens.Value; got != 256 {
		t.Errorf("max tokens = %v, want 256", got)
	}
}

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestTranslate_Server(t *testing.T) {
	var (
		mu  sync.Mutex
		got capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(body, &got)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "local-model",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Not interested.\n"}
			}]
		}`)
	}))
	defer srv.Close()

	tr, err := New("sk-test", "local-model", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := tr.Translate(context.Background(), translate.Request{
		Content:        "興味ないね",
		Speaker:        "Cloud",
		Type:           dialogue.TypeCharacter,
		TargetLanguage: "English",
		Params:         translate.Params{Temperature: 0.3, TopP: 0.9},
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Not interested." {
		t.Errorf("out = %q, want trimmed translation", out)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Model != "local-model" || got.Temperature != 0.3 || got.TopP != 0.9 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "興味ないね" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestTranslate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
	}))
	defer srv.Close()

	tr, err := New("sk-test", "local-model", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.Translate(context.Background(), translate.Request{Content: "x"}); err == nil {
		t.Fatal("expected error from failing server")
	}
}

func TestTranslate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 0, "model": "m", "choices": []}`)
	}))
	defer srv.Close()

	tr, err := New("sk-test", "m", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.Translate(context.Background(), translate.Request{Content: "x"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
