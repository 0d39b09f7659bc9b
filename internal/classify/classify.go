// Package classify turns raw OCR text from a dialogue box into a
// [dialogue.DialogueLine].
//
// Classification is a pure function of the input text and the optional name
// set: the same text always yields the same line. Rules are tried in a fixed
// order:
//
//  1. Empty or whitespace-only text is a Normal line marked Empty.
//  2. A mystery sentinel ("22", "222", "???", "????") as the whole text, the
//     first line, or the speaker of a separator split yields a Character line
//     spoken by [dialogue.Mystery].
//  3. System and UI messages ("Game saved", "Quest accepted", "[System] ...")
//     are System lines.
//  4. Two or more lines carrying choice markers ("1.", "A)", "▶", "•") form a
//     Choice line.
//  5. The first line is split on the separators ": ", " - ", " – " and "："
//     in that order. A purely numeric speaker defers the line to a later OCR
//     pass. A known or name-shaped speaker makes a Character line.
//  6. Anything else is Normal.
package classify

import (
	"regexp"
	"strings"

	"github.com/MrWong99/lorelens/internal/dialogue"
)

// NameSet reports whether a name is a known speaker. *character.Database
// implements it.
type NameSet interface {
	Contains(name string) bool
}

// corrector is implemented by name sets that carry literal OCR correction
// overrides. A candidate with an override is accepted as a speaker even when
// its raw form fails the name-shape checks ("C|oud").
type corrector interface {
	Correct(raw string) (string, bool)
}

// Separator splits a speaker prefix from the content of a line.
type Separator struct {
	// Name identifies the rule in [dialogue.DialogueLine.Separator].
	Name string

	// Token is the literal text between speaker and content.
	Token string
}

// Separators is the fixed priority order of inline speaker separators.
var Separators = []Separator{
	{Name: "colon", Token: ": "},
	{Name: "dash", Token: " - "},
	{Name: "en_dash", Token: " – "},
	{Name: "fullwidth_colon", Token: "："},
}

// Pattern is a named regular expression recognising a system message.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

var choiceMarker = regexp.MustCompile(`^(?:[0-9]{1,2}[.)]|[A-Da-d][.)]|[>▶►•・*-])\s*(\S.*)$`)

// defaultSystemPatterns returns the built-in set of system message patterns.
func defaultSystemPatterns() []Pattern {
	return []Pattern{
		{Name: "system-tag", Regex: regexp.MustCompile(`(?i)^[\[【(](system|info|notice|tutorial|tip)[\]】)]`)},
		{Name: "system-prefix", Regex: regexp.MustCompile(`(?i)^system\s*[:：]`)},
		{Name: "game-saved", Regex: regexp.MustCompile(`(?i)^(game|progress|data)\s+(saved|loaded)\b`)},
		{Name: "loading", Regex: regexp.MustCompile(`(?i)^(now\s+)?(loading|saving|autosaving)\s*(\.{2,}|…)?$`)},
		{Name: "quest", Regex: regexp.MustCompile(`(?i)^(new\s+)?(quest|mission|objective)\s+(accepted|updated|complete|completed|failed|started)\b`)},
		{Name: "obtained", Regex: regexp.MustCompile(`(?i)^(you\s+)?(obtained|received|acquired)\s+\S`)},
		{Name: "press-to", Regex: regexp.MustCompile(`(?i)^press\s+.+\s+to\s+\S`)},
		{Name: "unlocked", Regex: regexp.MustCompile(`(?i)^(achievement|trophy|skill|ability)\s+(unlocked|learned|acquired)\b`)},
		{Name: "level-up", Regex: regexp.MustCompile(`(?i)^level\s+up\b`)},
	}
}

// Option configures a [Classifier].
type Option func(*Classifier)

// WithNames makes names known speakers: they are accepted as speakers even
// when they fail the name-shape checks.
func WithNames(names NameSet) Option {
	return func(c *Classifier) {
		c.names = names
	}
}

// WithSystemPatterns appends extra system message patterns to the defaults.
func WithSystemPatterns(patterns ...Pattern) Option {
	return func(c *Classifier) {
		c.system = append(c.system, patterns...)
	}
}

// Classifier classifies OCR text. It is stateless after construction and
// safe for concurrent use.
type Classifier struct {
	names  NameSet
	system []Pattern
}

// New creates a [Classifier] with the default system patterns.
func New(opts ...Option) *Classifier {
	c := &Classifier{system: defaultSystemPatterns()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify classifies raw. It never fails: ambiguous input falls back to a
// Normal line.
func (c *Classifier) Classify(raw string) dialogue.DialogueLine {
	line := dialogue.DialogueLine{Raw: raw, Type: dialogue.TypeNormal}

	lines := splitLines(raw)
	if len(lines) == 0 {
		line.Empty = true
		return line
	}
	first, rest := lines[0], lines[1:]

	if dialogue.IsMysterySentinel(first) {
		return mystery(line, first, strings.Join(rest, " "), "")
	}

	if p, ok := c.matchSystem(first); ok {
		line.Type = dialogue.TypeSystem
		line.Content = strings.Join(lines, " ")
		line.Separator = "system:" + p.Name
		return line
	}

	if choices, ok := matchChoices(lines); ok {
		line.Type = dialogue.TypeChoice
		line.Choices = choices
		line.Content = strings.Join(lines, "\n")
		return line
	}

	for _, sep := range Separators {
		speaker, content, ok := strings.Cut(first, sep.Token)
		if !ok {
			continue
		}
		speaker = strings.TrimSpace(speaker)
		content = strings.TrimSpace(content)
		if speaker == "" {
			continue
		}
		body := joinContent(content, rest)

		switch {
		case dialogue.IsMysterySentinel(speaker):
			return mystery(line, speaker, body, sep.Name)
		case dialogue.IsNumeric(speaker):
			line.SpeakerCandidate = speaker
			line.Content = strings.Join(lines, " ")
			line.Separator = sep.Name
			line.Deferred = true
			return line
		}
		if name, ok := c.speakerName(speaker); ok {
			line.Type = dialogue.TypeCharacter
			line.SpeakerCandidate = name
			line.Content = body
			line.Separator = sep.Name
			return line
		}
	}

	// "Alphinaud:" alone on the first line, the content below it.
	if len(rest) > 0 {
		if speaker, ok := trailingColon(first); ok {
			if name, ok := c.speakerName(speaker); ok {
				line.Type = dialogue.TypeCharacter
				line.SpeakerCandidate = name
				line.Content = strings.Join(rest, " ")
				line.Separator = "trailing_colon"
				return line
			}
		}
	}

	line.Content = strings.Join(lines, " ")
	return line
}

// speakerName returns the cleaned speaker name if it is known or plausible.
func (c *Classifier) speakerName(candidate string) (string, bool) {
	name := dialogue.CollapseRepeats(candidate)
	if name == "" {
		return "", false
	}
	if c.names != nil && (c.names.Contains(name) || c.names.Contains(candidate)) {
		return name, true
	}
	if fx, ok := c.names.(corrector); ok {
		if _, ok := fx.Correct(candidate); ok {
			return candidate, true
		}
	}
	if dialogue.ValidName(name) {
		return name, true
	}
	return "", false
}

func (c *Classifier) matchSystem(first string) (Pattern, bool) {
	for _, p := range c.system {
		if p.Regex.MatchString(first) {
			return p, true
		}
	}
	return Pattern{}, false
}

// matchChoices accepts blocks where every line after an optional prompt
// carries a choice marker and there are at least two choices.
func matchChoices(lines []string) ([]string, bool) {
	if len(lines) < 2 {
		return nil, false
	}
	var choices []string
	for i, l := range lines {
		m := choiceMarker.FindStringSubmatch(l)
		if m == nil {
			if i == 0 {
				continue
			}
			return nil, false
		}
		choices = append(choices, strings.TrimSpace(m[1]))
	}
	if len(choices) < 2 {
		return nil, false
	}
	return choices, true
}

func mystery(line dialogue.DialogueLine, candidate, content, sep string) dialogue.DialogueLine {
	s := dialogue.Mystery()
	line.Type = dialogue.TypeCharacter
	line.SpeakerCandidate = candidate
	line.Speaker = &s
	line.Content = content
	line.Separator = sep
	return line
}

func trailingColon(s string) (string, bool) {
	for _, suffix := range []string{":", "："} {
		if name, ok := strings.CutSuffix(s, suffix); ok {
			name = strings.TrimSpace(name)
			return name, name != ""
		}
	}
	return "", false
}

// splitLines returns the trimmed, non-empty lines of raw.
func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func joinContent(first string, rest []string) string {
	if len(rest) == 0 {
		return first
	}
	if first == "" {
		return strings.Join(rest, " ")
	}
	return first + " " + strings.Join(rest, " ")
}
