// Package cutscene detects speaker-attributed dialogue in cutscene captures,
// where the speaker name and the spoken text sit on separate lines with no
// inline separator.
//
// Three layouts are recognised:
//
//	two_line     "Alphinaud\nWe must hurry."
//	multi_line   "Alphinaud\nWe must hurry.\nThe gate will not hold."
//	bracketed    "【Alphinaud】\nWe must hurry." or "[Alphinaud] We must hurry."
//
// Confidence starts at 0.7. The two-line layout adds 0.15. A speaker of 3 to
// 20 runes, content of at least 10 runes and content ending in terminal
// punctuation each add 0.05. The score is capped at 1 and results below the
// configured minimum are rejected.
package cutscene

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/lorelens/internal/dialogue"
)

// Format names the capture layout a [Result] was detected in.
type Format string

const (
	FormatTwoLine   Format = "two_line"
	FormatMultiLine Format = "multi_line"
	FormatBracketed Format = "bracketed"
)

const (
	baseConfidence     = 0.7
	twoLineBonus       = 0.15
	detailBonus        = 0.05
	defaultMinimum     = 0.7
	minSpeakerRunes    = 3
	maxSpeakerRunes    = 20
	minContentRunes    = 10
	sentenceTerminals  = ".!?。！？…"
	closingQuoteMarks  = `"'”’」』)）`
	speakerPunctuation = ".!?。！？…,;:、，；：\"“”"
)

var bracketed = regexp.MustCompile(`^(?:【([^】]+)】|\[([^\]]+)\])\s*(.*)$`)

// Result is a detected cutscene line.
type Result struct {
	Speaker    string  `json:"speaker"`
	Content    string  `json:"content"`
	Format     Format  `json:"format"`
	Confidence float64 `json:"confidence"`
}

// Option configures a [Detector].
type Option func(*Detector)

// WithMinConfidence sets the minimum confidence a detection needs. Default:
// 0.7.
func WithMinConfidence(v float64) Option {
	return func(d *Detector) {
		d.minConfidence = v
	}
}

// WithStopList adds names that must never be taken for speakers, in
// addition to the built-in UI keywords and chapter labels.
func WithStopList(names ...string) Option {
	return func(d *Detector) {
		for _, n := range names {
			d.stop[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
		}
	}
}

// Detector finds cutscene dialogue. It is stateless after construction and
// safe for concurrent use.
type Detector struct {
	minConfidence float64
	stop          map[string]struct{}
}

// New creates a [Detector].
func New(opts ...Option) *Detector {
	d := &Detector{
		minConfidence: defaultMinimum,
		stop:          make(map[string]struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect reports the speaker and content of text if it looks like a
// cutscene capture.
func (d *Detector) Detect(text string) (Result, bool) {
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return Result{}, false
	}

	if m := bracketed.FindStringSubmatch(lines[0]); m != nil {
		speaker := strings.TrimSpace(m[1] + m[2])
		content := joinNonEmpty(append([]string{strings.TrimSpace(m[3])}, lines[1:]...))
		return d.score(speaker, content, FormatBracketed)
	}

	if len(lines) < 2 {
		return Result{}, false
	}
	format := FormatMultiLine
	if len(lines) == 2 {
		format = FormatTwoLine
	}
	return d.score(lines[0], joinNonEmpty(lines[1:]), format)
}

func (d *Detector) score(speaker, content string, format Format) (Result, bool) {
	if content == "" || !d.validSpeaker(speaker) {
		return Result{}, false
	}

	conf := baseConfidence
	if format == FormatTwoLine {
		conf += twoLineBonus
	}
	if n := utf8.RuneCountInString(speaker); n >= minSpeakerRunes && n <= maxSpeakerRunes {
		conf += detailBonus
	}
	if utf8.RuneCountInString(content) >= minContentRunes {
		conf += detailBonus
	}
	if endsSentence(content) {
		conf += detailBonus
	}
	conf = min(conf, 1.0)

	if conf < d.minConfidence {
		return Result{}, false
	}
	return Result{
		Speaker:    dialogue.CollapseRepeats(speaker),
		Content:    content,
		Format:     format,
		Confidence: conf,
	}, true
}

func (d *Detector) validSpeaker(s string) bool {
	if !dialogue.ValidName(s) || dialogue.IsUIKeyword(s) {
		return false
	}
	if _, stopped := d.stop[strings.ToLower(s)]; stopped {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	return !strings.ContainsRune(speakerPunctuation, last)
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, closingQuoteMarks)
	last, _ := utf8.DecodeLastRuneInString(s)
	return last != utf8.RuneError && strings.ContainsRune(sentenceTerminals, last)
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
