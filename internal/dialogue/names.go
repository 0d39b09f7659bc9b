package dialogue

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Name-shape limits applied to speaker candidates.
const (
	MinNameLength = 2
	MaxNameLength = 30

	maxNameSpecials = 3
	maxNameWords    = 4
)

// stopWords are capitalised words that open ordinary sentences and are never
// speaker names ("Note: ...", "Yes - of course").
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "but": {}, "or": {}, "so": {},
	"if": {}, "then": {}, "when": {}, "what": {}, "why": {}, "how": {},
	"who": {}, "where": {}, "yes": {}, "no": {}, "ok": {}, "okay": {},
	"oh": {}, "ah": {}, "hmm": {}, "well": {}, "maybe": {}, "not": {},
	"note": {}, "tip": {}, "hint": {}, "warning": {}, "error": {},
	"system": {}, "info": {}, "notice": {}, "objective": {}, "quest": {},
	"reward": {}, "rewards": {}, "time": {}, "location": {}, "level": {},
	"however": {}, "meanwhile": {}, "later": {}, "now": {}, "here": {},
	"there": {}, "this": {}, "that": {}, "it": {}, "i": {}, "you": {},
	"we": {}, "they": {}, "he": {}, "she": {},
}

// uiKeywords are menu labels that appear on their own line in cutscene
// captures and must not be taken for speaker names.
var uiKeywords = map[string]struct{}{
	"continue": {}, "skip": {}, "back": {}, "menu": {}, "options": {},
	"settings": {}, "save": {}, "load": {}, "auto": {}, "log": {},
	"close": {}, "next": {}, "confirm": {}, "cancel": {}, "accept": {},
	"decline": {}, "exit": {}, "quit": {}, "start": {}, "history": {},
	"new game": {}, "main menu": {}, "quick save": {}, "quick load": {},
	"fast forward": {}, "backlog": {}, "config": {}, "title": {},
}

// sceneLabel matches chapter and scene headings ("Chapter 3", "Act II",
// "Prologue").
var sceneLabel = regexp.MustCompile(`(?i)^(chapter|scene|act|part|episode|prologue|epilogue|interlude|intermission|stage|day|route)\b`)

var numericOnly = regexp.MustCompile(`^[0-9\s.,:]+$`)

var mysterySentinel = regexp.MustCompile(`^(?:22|222|[?？]{3,4})$`)

// IsMysterySentinel reports whether s is one of the literal forms OCR
// produces for the game's unknown-speaker glyph: "22", "222", "???" or
// "????".
func IsMysterySentinel(s string) bool {
	return mysterySentinel.MatchString(strings.TrimSpace(s))
}

// IsStopWord reports whether s (case-insensitive) is a sentence opener that
// can never be a speaker.
func IsStopWord(s string) bool {
	_, ok := stopWords[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// IsUIKeyword reports whether s is a menu label or a chapter/scene heading.
func IsUIKeyword(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	if _, ok := uiKeywords[t]; ok {
		return true
	}
	return sceneLabel.MatchString(t)
}

// IsNumeric reports whether s consists only of digits and numeric
// punctuation.
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && numericOnly.MatchString(s)
}

// ValidName applies the basic name-shape checks to a speaker candidate: it
// starts with an uppercase letter, is between [MinNameLength] and
// [MaxNameLength] runes long, has few non-letter characters, at most a
// handful of words, does not end in a lowercase word, and is not a stop
// word.
func ValidName(s string) bool {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < MinNameLength || n > MaxNameLength {
		return false
	}
	if IsNumeric(s) || IsStopWord(s) {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsUpper(first) && !isUncasedLetter(first) {
		return false
	}
	words := strings.Fields(s)
	if len(words) > maxNameWords {
		return false
	}
	// "He said: ..." style prefixes end in a lowercase word; names such as
	// "Gaius van Baelsar" only use lowercase particles inside.
	if last, _ := utf8.DecodeRuneInString(words[len(words)-1]); unicode.IsLower(last) {
		return false
	}

	specials := 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		case r == '\'' || r == '’' || r == '-' || r == '.':
			specials++
		default:
			return false
		}
	}
	return specials <= maxNameSpecials
}

// isUncasedLetter accepts letters from scripts without case (CJK, kana) so
// that Japanese or Chinese speaker names pass the uppercase check.
func isUncasedLetter(r rune) bool {
	return unicode.IsLetter(r) && !unicode.IsUpper(r) && !unicode.IsLower(r)
}

// CollapseRepeats removes OCR doubling from a speaker name: consecutive
// repeated tokens ("Alphinaud Alphinaud") and a name glued to itself
// ("ThancredThancred") are reduced to a single occurrence.
func CollapseRepeats(name string) string {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return ""
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(out) > 0 && strings.EqualFold(out[len(out)-1], t) {
			continue
		}
		out = append(out, t)
	}

	// "Urianger Augurelt Urianger Augurelt": the whole sequence repeated.
	if half := len(out) / 2; len(out)%2 == 0 && half > 0 {
		same := true
		for i := 0; i < half; i++ {
			if !strings.EqualFold(out[i], out[half+i]) {
				same = false
				break
			}
		}
		if same {
			out = out[:half]
		}
	}

	if len(out) == 1 {
		out[0] = collapseGlued(out[0])
	}
	return strings.Join(out, " ")
}

func collapseGlued(s string) string {
	r := []rune(s)
	if len(r) < 6 || len(r)%2 != 0 {
		return s
	}
	half := len(r) / 2
	if strings.EqualFold(string(r[:half]), string(r[half:])) {
		return string(r[:half])
	}
	return s
}
