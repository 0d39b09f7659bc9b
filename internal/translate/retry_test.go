package translate

import (
	"math"
	"strings"
	"testing"
)

func TestRetryPolicyParams(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	tests := []struct {
		attempt  int
		wantTemp float64
		wantTopP float64
	}{
		{attempt: 0, wantTemp: 0.3, wantTopP: 0.9},
		{attempt: 1, wantTemp: 0.5, wantTopP: 0.85},
		{attempt: 2, wantTemp: 0.7, wantTopP: 0.8},
		{attempt: -1, wantTemp: 0.3, wantTopP: 0.9},
		{attempt: 50, wantTemp: 2, wantTopP: 0.05},
	}
	for _, tt := range tests {
		got := p.Params(tt.attempt)
		if math.Abs(got.Temperature-tt.wantTemp) > 1e-9 || math.Abs(got.TopP-tt.wantTopP) > 1e-9 {
			t.Errorf("Params(%d) = %+v, want {%v %v}", tt.attempt, got, tt.wantTemp, tt.wantTopP)
		}
	}

	// Calling Params must not drift the base values.
	again := p.Params(0)
	if again.Temperature != 0.3 || again.TopP != 0.9 {
		t.Errorf("Params(0) after other attempts = %+v", again)
	}
	if p != DefaultRetryPolicy() {
		t.Error("policy mutated by Params")
	}
}

func TestRetryPolicyAttempts(t *testing.T) {
	t.Parallel()

	if got := (RetryPolicy{}).Attempts(); got != 1 {
		t.Errorf("zero policy Attempts = %d, want 1", got)
	}
	if got := DefaultRetryPolicy().Attempts(); got != 3 {
		t.Errorf("default Attempts = %d, want 3", got)
	}
}

func TestRetryPolicyAccept(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	tests := []struct {
		name   string
		source string
		out    string
		want   bool
	}{
		{name: "normal", source: "お前は誰だ？", out: "Who are you?", want: true},
		{name: "empty", source: "Hallo", out: "   ", want: false},
		{name: "echo", source: "Guten Morgen", out: "guten morgen", want: false},
		{name: "short echo allowed", source: "OK", out: "OK", want: true},
		{name: "runaway", source: "Bonjour!", out: strings.Repeat("Hello there. ", 10), want: false},
		{name: "long but bounded", source: "Bonjour!", out: "Good morning to you!", want: true},
		{name: "short source no ratio", source: "はい", out: "Yes, of course, I will be right there.", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.Accept(tt.source, tt.out); got != tt.want {
				t.Errorf("Accept(%q, %q) = %v, want %v", tt.source, tt.out, got, tt.want)
			}
		})
	}
}
