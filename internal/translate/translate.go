// Package translate runs the cache-miss path of the dialogue pipeline: it
// hands classified lines to a translation backend, retries with adjusted
// sampling parameters, and stores accepted results in the session cache.
//
// Backends implement [Translator]. The openai and anyllm subpackages
// provide LLM-backed implementations; [Fallback] chains several backends
// with per-backend circuit breakers.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/session"
)

var (
	// ErrNoContent is returned for lines that carry nothing to translate:
	// empty input, deferred OCR artifacts and lines without content.
	ErrNoContent = errors.New("translate: nothing to translate")

	// ErrRejected is returned when every attempt produced output that failed
	// the quality gate of the [RetryPolicy].
	ErrRejected = errors.New("translate: translation rejected")
)

// Params are the sampling parameters of one backend call.
type Params struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// Request is one translation job.
type Request struct {
	// Content is the text to translate, without the speaker prefix.
	Content string `json:"content"`

	// Speaker is the resolved speaker name, empty for narration.
	Speaker string `json:"speaker,omitempty"`

	Type dialogue.Type `json:"type"`

	// Choices holds the options of a choice menu, one per line of Content.
	Choices []string `json:"choices,omitempty"`

	StyleHints session.StyleHints `json:"style_hints"`

	// TargetLanguage is a human-readable language name ("English").
	TargetLanguage string `json:"target_language"`

	Params Params `json:"params"`
}

// Translator is a translation backend.
//
// Implementations must be safe for concurrent use.
type Translator interface {
	// Translate returns the translation of req.Content. An empty result with
	// a nil error is treated as a rejected translation.
	Translate(ctx context.Context, req Request) (string, error)
}

// TranslatorFunc adapts a function to [Translator].
type TranslatorFunc func(ctx context.Context, req Request) (string, error)

// Translate implements [Translator].
func (f TranslatorFunc) Translate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Prompt renders req as a system and a user message for chat-style LLM
// backends. The system message carries the target language, the dialogue
// type and the speaker's style hints.
func Prompt(req Request) (system, user string) {
	lang := req.TargetLanguage
	if lang == "" {
		lang = "English"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You translate video game text into %s. ", lang)
	b.WriteString("Reply with the translation only, without quotes, notes or the speaker's name.")

	switch req.Type {
	case dialogue.TypeCharacter:
		if req.Speaker != "" && req.Speaker != dialogue.MysteryName {
			fmt.Fprintf(&b, "\nThe line is spoken by %s.", req.Speaker)
		} else {
			b.WriteString("\nThe line is spoken by an unidentified character.")
		}
	case dialogue.TypeChoice:
		b.WriteString("\nThe text is a menu of player choices. Keep one choice per line, in the same order.")
	case dialogue.TypeSystem:
		b.WriteString("\nThe text is a game system message. Keep it short and neutral.")
	default:
		b.WriteString("\nThe text is narration.")
	}

	h := req.StyleHints
	var traits []string
	if h.Style != "" {
		traits = append(traits, "speaking style: "+h.Style)
	}
	if h.Gender != "" {
		traits = append(traits, "gender: "+h.Gender)
	}
	if h.Relationship != "" {
		traits = append(traits, "relationship to the player: "+h.Relationship)
	}
	if h.Role != "" {
		traits = append(traits, "role: "+h.Role)
	}
	if len(traits) > 0 {
		fmt.Fprintf(&b, "\nSpeaker profile (%s).", strings.Join(traits, "; "))
	}

	return b.String(), req.Content
}
