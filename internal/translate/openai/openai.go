// Package openai provides a translation backend backed by the OpenAI chat
// completions API or any server that speaks it (vLLM, LM Studio, llama.cpp).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/lorelens/internal/translate"
)

// Translator implements [translate.Translator] using the OpenAI API.
type Translator struct {
	client    oai.Client
	model     string
	maxTokens int
}

// Compile-time interface assertion.
var _ translate.Translator = (*Translator)(nil)

// config holds optional configuration for the translator.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
	maxTokens    int
	httpClient   *http.Client
}

// Option is a functional option for Translator.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the SDK retries a failed request itself.
// A negative value keeps the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithMaxTokens caps the completion length. Zero leaves it to the server.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// WithHTTPClient replaces the HTTP client. It takes precedence over
// [WithTimeout].
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a new OpenAI Translator.
func New(apiKey string, model string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Translator{client: client, model: model, maxTokens: cfg.maxTokens}, nil
}

// Translate implements [translate.Translator].
func (t *Translator) Translate(ctx context.Context, req translate.Request) (string, error) {
	resp, err := t.client.Chat.Completions.New(ctx, t.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildParams converts a translation request into OpenAI SDK params.
func (t *Translator) buildParams(req translate.Request) oai.ChatCompletionNewParams {
	system, user := translate.Prompt(req)

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature: param.NewOpt(req.Params.Temperature),
	}
	if req.Params.TopP > 0 {
		params.TopP = param.NewOpt(req.Params.TopP)
	}
	if t.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(t.maxTokens))
	}
	return params
}
