package classify_test

import (
	"reflect"
	"regexp"
	"slices"
	"testing"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/classify"
	"github.com/MrWong99/lorelens/internal/dialogue"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	c := classify.New()

	tests := []struct {
		name      string
		raw       string
		wantType  dialogue.Type
		speaker   string
		content   string
		separator string
		mystery   bool
		deferred  bool
		empty     bool
	}{
		{
			name:      "colon separator",
			raw:       "Y'shtola: The wind stirs.",
			wantType:  dialogue.TypeCharacter,
			speaker:   "Y'shtola",
			content:   "The wind stirs.",
			separator: "colon",
		},
		{
			name:      "dash separator",
			raw:       "Thancred - Keep your voice down.",
			wantType:  dialogue.TypeCharacter,
			speaker:   "Thancred",
			content:   "Keep your voice down.",
			separator: "dash",
		},
		{
			name:      "en dash separator",
			raw:       "Urianger – Thou art late.",
			wantType:  dialogue.TypeCharacter,
			speaker:   "Urianger",
			content:   "Thou art late.",
			separator: "en_dash",
		},
		{
			name:      "fullwidth colon",
			raw:       "アルフィノ：行こう。",
			wantType:  dialogue.TypeCharacter,
			speaker:   "アルフィノ",
			content:   "行こう。",
			separator: "fullwidth_colon",
		},
		{
			name:      "colon wins over dash",
			raw:       "Alisaie: Well - fine.",
			wantType:  dialogue.TypeCharacter,
			speaker:   "Alisaie",
			content:   "Well - fine.",
			separator: "colon",
		},
		{
			name:      "multi line content is joined",
			raw:       "Estinien: Enough.\nWe ride at dawn.",
			wantType:  dialogue.TypeCharacter,
			speaker:   "Estinien",
			content:   "Enough. We ride at dawn.",
			separator: "colon",
		},
		{
			name:      "repeated speaker collapsed",
			raw:       "Alphinaud Alphinaud: Indeed.",
			wantType:  dialogue.TypeCharacter,
			speaker:   "Alphinaud",
			content:   "Indeed.",
			separator: "colon",
		},
		{
			name:      "trailing colon name line",
			raw:       "Tataru:\nThe bill, please!",
			wantType:  dialogue.TypeCharacter,
			speaker:   "Tataru",
			content:   "The bill, please!",
			separator: "trailing_colon",
		},
		{
			name:     "mystery 222",
			raw:      "222",
			wantType: dialogue.TypeCharacter,
			speaker:  "222",
			mystery:  true,
		},
		{
			name:     "mystery question marks",
			raw:      "???",
			wantType: dialogue.TypeCharacter,
			speaker:  "???",
			mystery:  true,
		},
		{
			name:     "mystery four question marks",
			raw:      "????",
			wantType: dialogue.TypeCharacter,
			speaker:  "????",
			mystery:  true,
		},
		{
			name:     "mystery first line passes content through",
			raw:      "22\nYou should not be here.",
			wantType: dialogue.TypeCharacter,
			speaker:  "22",
			content:  "You should not be here.",
			mystery:  true,
		},
		{
			name:      "mystery as separator speaker",
			raw:       "???: Who goes there?",
			wantType:  dialogue.TypeCharacter,
			speaker:   "???",
			content:   "Who goes there?",
			separator: "colon",
			mystery:   true,
		},
		{
			name:      "numeric speaker is deferred",
			raw:       "12: Hello there.",
			wantType:  dialogue.TypeNormal,
			speaker:   "12",
			content:   "12: Hello there.",
			separator: "colon",
			deferred:  true,
		},
		{
			name:     "stop word is not a speaker",
			raw:      "Note: the gate is sealed.",
			wantType: dialogue.TypeNormal,
			content:  "Note: the gate is sealed.",
		},
		{
			name:     "sentence prefix is not a speaker",
			raw:      "He said: run.",
			wantType: dialogue.TypeNormal,
			content:  "He said: run.",
		},
		{
			name:     "narration",
			raw:      "The wind howls across the plains.",
			wantType: dialogue.TypeNormal,
			content:  "The wind howls across the plains.",
		},
		{
			name:     "empty",
			raw:      "  \n\t ",
			wantType: dialogue.TypeNormal,
			empty:    true,
		},
		{
			name:      "system message",
			raw:       "Quest accepted: Into the Aether",
			wantType:  dialogue.TypeSystem,
			content:   "Quest accepted: Into the Aether",
			separator: "system:quest",
		},
		{
			name:      "system prefix",
			raw:       "System: Connection restored.",
			wantType:  dialogue.TypeSystem,
			content:   "System: Connection restored.",
			separator: "system:system-prefix",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tc.raw)
			if got.Raw != tc.raw {
				t.Errorf("Raw = %q, want %q", got.Raw, tc.raw)
			}
			if got.Type != tc.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tc.wantType)
			}
			if got.SpeakerCandidate != tc.speaker {
				t.Errorf("SpeakerCandidate = %q, want %q", got.SpeakerCandidate, tc.speaker)
			}
			if got.Content != tc.content {
				t.Errorf("Content = %q, want %q", got.Content, tc.content)
			}
			if got.Separator != tc.separator {
				t.Errorf("Separator = %q, want %q", got.Separator, tc.separator)
			}
			if got.Deferred != tc.deferred {
				t.Errorf("Deferred = %v, want %v", got.Deferred, tc.deferred)
			}
			if got.Empty != tc.empty {
				t.Errorf("Empty = %v, want %v", got.Empty, tc.empty)
			}
			isMystery := got.Speaker != nil && got.Speaker.IsMystery()
			if isMystery != tc.mystery {
				t.Errorf("mystery speaker = %v, want %v", isMystery, tc.mystery)
			}
		})
	}
}

func TestClassifyChoices(t *testing.T) {
	t.Parallel()
	c := classify.New()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"numbered", "1. Accept the offer.\n2. Refuse.", []string{"Accept the offer.", "Refuse."}},
		{"with prompt", "What will you do?\n▶ Fight\n▶ Flee", []string{"Fight", "Flee"}},
		{"lettered", "A) Yes\nB) No\nC) Maybe", []string{"Yes", "No", "Maybe"}},
		{"bullets", "• Ask about the crystal\n• Leave", []string{"Ask about the crystal", "Leave"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tc.raw)
			if got.Type != dialogue.TypeChoice {
				t.Fatalf("Type = %q, want choice", got.Type)
			}
			if !slices.Equal(got.Choices, tc.want) {
				t.Errorf("Choices = %q, want %q", got.Choices, tc.want)
			}
		})
	}

	if got := c.Classify("1. Only one option"); got.Type == dialogue.TypeChoice {
		t.Error("a single marked line is not a choice menu")
	}
	if got := c.Classify("1. First\nplain text"); got.Type == dialogue.TypeChoice {
		t.Error("unmarked line after a choice should reject the menu")
	}
}

func TestClassifyKnownNames(t *testing.T) {
	t.Parallel()
	db := character.NewDatabase("", []character.Record{{Name: "the Exarch"}}, nil, nil)

	raw := "the Exarch: Welcome to the Crystarium."
	if got := classify.New().Classify(raw); got.Type != dialogue.TypeNormal {
		t.Fatalf("without names: Type = %q, want normal", got.Type)
	}
	got := classify.New(classify.WithNames(db)).Classify(raw)
	if got.Type != dialogue.TypeCharacter || got.SpeakerCandidate != "the Exarch" {
		t.Fatalf("with names: got %+v", got)
	}
}

func TestClassifyCorrectedSpeaker(t *testing.T) {
	t.Parallel()
	db := character.NewDatabase("", []character.Record{{Name: "Cloud"}}, map[string]string{"C|oud": "Cloud"}, nil)

	raw := "C|oud: Not interested."
	if got := classify.New().Classify(raw); got.Type != dialogue.TypeNormal {
		t.Fatalf("without overrides: Type = %q, want normal", got.Type)
	}
	got := classify.New(classify.WithNames(db)).Classify(raw)
	if got.Type != dialogue.TypeCharacter || got.SpeakerCandidate != "C|oud" || got.Content != "Not interested." {
		t.Fatalf("with overrides: got %+v", got)
	}
}

func TestClassifyCustomSystemPattern(t *testing.T) {
	t.Parallel()
	c := classify.New(classify.WithSystemPatterns(classify.Pattern{
		Name:  "duty",
		Regex: regexp.MustCompile(`(?i)^duty\s+commenced`),
	}))
	got := c.Classify("Duty commenced. Time remaining: 60 minutes.")
	if got.Type != dialogue.TypeSystem || got.Separator != "system:duty" {
		t.Fatalf("got %+v, want system:duty", got)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	t.Parallel()
	c := classify.New()
	for _, raw := range []string{
		"Y'shtola: The wind stirs.",
		"???",
		"12: Hello",
		"1. Yes\n2. No",
		"",
		"Quest complete!",
		"Just narration.",
	} {
		first, second := c.Classify(raw), c.Classify(raw)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Classify(%q) not idempotent:\n%+v\n%+v", raw, first, second)
		}
	}
}
