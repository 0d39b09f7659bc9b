package translate

import (
	"strings"
	"unicode/utf8"
)

// RetryPolicy decides how often a line is retried and with which sampling
// parameters. Each retry raises the temperature and lowers top-p a little,
// so a backend that echoed the source or rambled gets a different sample.
//
// Params is a pure function of the attempt index: the base values are
// never modified.
type RetryPolicy struct {
	MaxAttempts     int
	BaseTemperature float64
	TemperatureStep float64
	BaseTopP        float64
	TopPStep        float64
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BaseTemperature: 0.3,
		TemperatureStep: 0.2,
		BaseTopP:        0.9,
		TopPStep:        0.05,
	}
}

// Attempts returns the number of backend calls per line, at least 1.
func (p RetryPolicy) Attempts() int {
	return max(p.MaxAttempts, 1)
}

// Params returns the sampling parameters for the zero-based attempt.
// Temperature is clamped to [0, 2] and top-p to (0, 1].
func (p RetryPolicy) Params(attempt int) Params {
	attempt = max(attempt, 0)
	temp := p.BaseTemperature + float64(attempt)*p.TemperatureStep
	topP := p.BaseTopP - float64(attempt)*p.TopPStep
	return Params{
		Temperature: min(max(temp, 0), 2),
		TopP:        min(max(topP, 0.05), 1),
	}
}

// maxLengthRatio bounds how much longer a translation may be than its
// source before it is treated as a runaway answer.
const maxLengthRatio = 8

// Accept is the quality gate for a backend answer. It rejects empty
// output, an echo of a source longer than a few characters, and answers
// far longer than the source.
func (p RetryPolicy) Accept(source, translation string) bool {
	src := strings.TrimSpace(source)
	out := strings.TrimSpace(translation)
	if out == "" {
		return false
	}
	srcLen := utf8.RuneCountInString(src)
	if srcLen > 3 && strings.EqualFold(src, out) {
		return false
	}
	if srcLen >= 8 && utf8.RuneCountInString(out) > maxLengthRatio*srcLen {
		return false
	}
	return true
}
