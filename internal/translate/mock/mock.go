// Package mock provides a test double for the [translate.Translator]
// interface.
//
// Responses and Errors are consumed in call order; once exhausted, the last
// element keeps being returned. All fields are safe to set before the first
// call.
//
// Example:
//
//	tr := &mock.Translator{Responses: []string{"Let's mosey."}}
//	svc := translate.NewService(sess, tr)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lorelens/internal/translate"
)

// Call records a single invocation of Translate.
type Call struct {
	Ctx context.Context
	Req translate.Request
}

// Translator is a mock implementation of [translate.Translator].
type Translator struct {
	mu sync.Mutex

	// Responses are returned in order.
	Responses []string

	// Errors are returned in order alongside Responses. A nil entry means
	// success.
	Errors []error

	// Calls records every invocation in order.
	Calls []Call
}

// Compile-time interface check.
var _ translate.Translator = (*Translator)(nil)

// Translate implements [translate.Translator].
func (m *Translator) Translate(ctx context.Context, req translate.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.Calls)
	m.Calls = append(m.Calls, Call{Ctx: ctx, Req: req})

	var err error
	if len(m.Errors) > 0 {
		err = m.Errors[min(n, len(m.Errors)-1)]
	}
	if err != nil {
		return "", err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	return m.Responses[min(n, len(m.Responses)-1)], nil
}

// CallCount returns the number of Translate calls so far.
func (m *Translator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Requests returns a copy of every request passed to Translate.
func (m *Translator) Requests() []translate.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]translate.Request, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Req
	}
	return out
}
