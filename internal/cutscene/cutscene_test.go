package cutscene_test

import (
	"math"
	"testing"

	"github.com/MrWong99/lorelens/internal/cutscene"
)

func TestDetect(t *testing.T) {
	t.Parallel()
	d := cutscene.New()

	tests := []struct {
		name     string
		text     string
		speaker  string
		content  string
		format   cutscene.Format
		conf     float64
		detected bool
	}{
		{
			name:     "two line all bonuses",
			text:     "Alphinaud\nWe must hurry to the gate.",
			speaker:  "Alphinaud",
			content:  "We must hurry to the gate.",
			format:   cutscene.FormatTwoLine,
			conf:     1.0,
			detected: true,
		},
		{
			name:     "two line short content",
			text:     "Alphinaud\nGo",
			speaker:  "Alphinaud",
			content:  "Go",
			format:   cutscene.FormatTwoLine,
			conf:     0.9,
			detected: true,
		},
		{
			name:     "multi line",
			text:     "Estinien\nThe dragon stirs.\nBe ready",
			speaker:  "Estinien",
			content:  "The dragon stirs. Be ready",
			format:   cutscene.FormatMultiLine,
			conf:     0.8,
			detected: true,
		},
		{
			name:     "multi line terminal punctuation",
			text:     "Estinien\nThe dragon stirs.\nBe ready!",
			speaker:  "Estinien",
			content:  "The dragon stirs. Be ready!",
			format:   cutscene.FormatMultiLine,
			conf:     0.85,
			detected: true,
		},
		{
			name:     "long speaker no length bonus",
			text:     "Gaius van Baelsar Garlemald\nKneel.",
			speaker:  "Gaius van Baelsar Garlemald",
			content:  "Kneel.",
			format:   cutscene.FormatTwoLine,
			conf:     0.9,
			detected: true,
		},
		{
			name:     "quoted terminal",
			text:     "Tataru\n\"You owe me twelve thousand gil!\"",
			speaker:  "Tataru",
			content:  "\"You owe me twelve thousand gil!\"",
			format:   cutscene.FormatTwoLine,
			conf:     1.0,
			detected: true,
		},
		{
			name:     "fullwidth brackets",
			text:     "【Y'shtola】\n風が騒いでいる。",
			speaker:  "Y'shtola",
			content:  "風が騒いでいる。",
			format:   cutscene.FormatBracketed,
			conf:     0.8,
			detected: true,
		},
		{
			name:     "square brackets inline",
			text:     "[Krile] Did you hear that sound?",
			speaker:  "Krile",
			content:  "Did you hear that sound?",
			format:   cutscene.FormatBracketed,
			conf:     0.85,
			detected: true,
		},
		{name: "single line", text: "Alphinaud"},
		{name: "empty", text: "  \n "},
		{name: "ui keyword", text: "Continue\nPress any button to continue."},
		{name: "chapter label", text: "Chapter 3\nThe Gathering Storm"},
		{name: "sentence first line", text: "It was late.\nThe wind howled."},
		{name: "lowercase first line", text: "alphinaud\nWe must hurry."},
		{name: "bracket without content", text: "[Krile]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := d.Detect(tc.text)
			if ok != tc.detected {
				t.Fatalf("Detect(%q) detected = %v, want %v (result %+v)", tc.text, ok, tc.detected, got)
			}
			if !ok {
				return
			}
			if got.Speaker != tc.speaker {
				t.Errorf("Speaker = %q, want %q", got.Speaker, tc.speaker)
			}
			if got.Content != tc.content {
				t.Errorf("Content = %q, want %q", got.Content, tc.content)
			}
			if got.Format != tc.format {
				t.Errorf("Format = %q, want %q", got.Format, tc.format)
			}
			if math.Abs(got.Confidence-tc.conf) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tc.conf)
			}
			if got.Confidence > 1 {
				t.Errorf("Confidence %v exceeds 1", got.Confidence)
			}
		})
	}
}

func TestDetectOptions(t *testing.T) {
	t.Parallel()

	strict := cutscene.New(cutscene.WithMinConfidence(0.95))
	if _, ok := strict.Detect("Alphinaud\nGo"); ok {
		t.Error("0.9 confidence should be rejected at minimum 0.95")
	}
	if _, ok := strict.Detect("Alphinaud\nWe must hurry to the gate."); !ok {
		t.Error("full confidence should pass minimum 0.95")
	}

	stopped := cutscene.New(cutscene.WithStopList("Inventory"))
	if _, ok := stopped.Detect("Inventory\nPotion x3 and a hi-potion."); ok {
		t.Error("stop-listed first line should not be a speaker")
	}
}
