// Package similarity scores how alike two speaker names are when one of them
// may have been corrupted by OCR.
//
// Three measures are combined:
//
//  1. [Engine.Similarity]: a weighted optimal-string-alignment edit distance.
//     Substituting two characters from the same confusable set (l/I/1/|,
//     0/O/D, 5/S, ...) costs 0.5 instead of 1.0, and so does swapping two
//     adjacent characters. Case is ignored throughout, including confusable
//     lookups, so "Vlfric" and "VLFRIC" are as close to "Ulfric" as "vlfric"
//     is to "ulfric". Apostrophes are ignored so "Y'shtola" and "Yshtola"
//     compare equal.
//
//  2. [Engine.NGramSimilarity]: Jaccard overlap of character n-grams after
//     case folding, stripping punctuation and whitespace, and rewriting the
//     most common OCR digit-for-letter substitutions.
//
//  3. A recency bonus used by [Engine.WeightedMatch] that favours names seen
//     recently in the current session.
//
// [Engine.GenerateVariations] widens a lookup by producing plausible
// misreadings of a candidate, one confusable substitution at a time.
//
// An Engine is read-only after construction and safe for concurrent use.
package similarity

import (
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"
)

const (
	defaultWeightedThreshold = 0.6
	defaultNGramSize         = 2
	defaultMaxVariations     = 256

	confusableCost    = 0.5
	transpositionCost = 0.5

	ngramWeight   = 0.4
	editWeight    = 0.4
	recencyWeight = 0.2

	tieEpsilon = 1e-9
)

// DefaultConfusables lists the character groups OCR engines commonly mix up
// in dialogue-box fonts.
var DefaultConfusables = []string{
	"lI1|i!",
	"0OoDQ",
	"5Ss",
	"2Zz",
	"8B",
	"6Gb",
	"9gq",
	"7T",
	"4A",
	"uv",
	"nh",
	"cCe",
}

// ocrFold is applied after case folding for n-gram comparison.
var ocrFold = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'|': 'l',
	'!': 'l',
	'5': 's',
	'$': 's',
	'2': 'z',
	'8': 'b',
	'@': 'a',
}

// Option configures an [Engine].
type Option func(*Engine)

// WithWeightedThreshold sets the score a [Engine.WeightedMatch] result must
// exceed. Default: 0.6.
func WithWeightedThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.weightedThreshold = threshold
	}
}

// WithNGramSize sets the n used by [Engine.WeightedMatch]. Values below 1
// are ignored. Default: 2.
func WithNGramSize(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.ngramSize = n
		}
	}
}

// WithConfusables replaces the confusable-character table. Each string is
// one group of mutually confusable runes.
func WithConfusables(groups []string) Option {
	return func(e *Engine) {
		e.groups = groups
	}
}

// WithMaxVariations caps how many strings [Engine.GenerateVariations]
// returns. Default: 256.
func WithMaxVariations(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxVariations = n
		}
	}
}

// Engine computes name similarity scores.
type Engine struct {
	weightedThreshold float64
	ngramSize         int
	maxVariations     int
	groups            []string

	// confusable maps a rune to the indexes of every group containing it,
	// in either case.
	confusable map[rune][]int
}

// New returns an [Engine] with the default confusable table and thresholds.
func New(opts ...Option) *Engine {
	e := &Engine{
		weightedThreshold: defaultWeightedThreshold,
		ngramSize:         defaultNGramSize,
		maxVariations:     defaultMaxVariations,
		groups:            DefaultConfusables,
	}
	for _, o := range opts {
		o(e)
	}
	e.confusable = make(map[rune][]int)
	for i, g := range e.groups {
		for _, r := range g {
			for _, c := range []rune{r, unicode.ToLower(r), unicode.ToUpper(r)} {
				if !slices.Contains(e.confusable[c], i) {
					e.confusable[c] = append(e.confusable[c], i)
				}
			}
		}
	}
	return e
}

// WeightedThreshold returns the acceptance threshold of [Engine.WeightedMatch].
func (e *Engine) WeightedThreshold() float64 { return e.weightedThreshold }

// ─── Edit distance ──────────────────────────────────────────────────────────

// Similarity returns 1 - d/max(len(a), len(b)) where d is the weighted
// edit distance between a and b, clamped to [0, 1]. Identical non-empty
// inputs score 1 and an empty input scores 0. The score is symmetric.
func (e *Engine) Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := foldRunes(a), foldRunes(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	d := e.distance(ra, rb)
	score := 1 - d/float64(max(len(ra), len(rb)))
	return clamp01(score)
}

// distance is the optimal string alignment distance with confusable-aware
// substitution and discounted adjacent transposition. a and b must already
// be case folded.
func (e *Engine) distance(a, b []rune) float64 {
	prev2 := make([]float64, len(b)+1)
	prev := make([]float64, len(b)+1)
	cur := make([]float64, len(b)+1)
	for j := range prev {
		prev[j] = float64(j)
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = float64(i)
		for j := 1; j <= len(b); j++ {
			best := min(prev[j]+1, cur[j-1]+1, prev[j-1]+e.substitutionCost(a[i-1], b[j-1]))
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] && a[i-1] != a[i-2] {
				best = min(best, prev2[j-2]+transpositionCost)
			}
			cur[j] = best
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}

func (e *Engine) substitutionCost(x, y rune) float64 {
	if x == y {
		return 0
	}
	if e.sameGroup(x, y) {
		return confusableCost
	}
	return 1
}

func (e *Engine) sameGroup(x, y rune) bool {
	for _, gx := range e.confusable[x] {
		for _, gy := range e.confusable[y] {
			if gx == gy {
				return true
			}
		}
	}
	return false
}

// ─── N-grams ────────────────────────────────────────────────────────────────

// NGramSimilarity returns the Jaccard overlap of the character n-grams of a
// and b after OCR-aware normalisation. A normalised string shorter than n is
// treated as a single token. Inputs that normalise to nothing score 0.
func (e *Engine) NGramSimilarity(a, b string, n int) float64 {
	if n < 1 {
		n = 1
	}
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ga, gb := ngrams(na, n), ngrams(nb, n)
	inter := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// normalize case-folds s, rewrites common OCR substitutions and drops every
// rune that is neither a letter nor a digit.
func normalize(s string) string {
	folded := cases.Fold().String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if m, ok := ocrFold[r]; ok {
			r = m
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ngrams(s string, n int) map[string]struct{} {
	runes := []rune(s)
	out := make(map[string]struct{})
	if len(runes) < n {
		out[s] = struct{}{}
		return out
	}
	for i := 0; i+n <= len(runes); i++ {
		out[string(runes[i:i+n])] = struct{}{}
	}
	return out
}

// ─── Variations ─────────────────────────────────────────────────────────────

// GenerateVariations returns plausible OCR misreadings of name. The first
// element is always name itself. The rest are, in order: every single
// confusable substitution, the form with all whitespace removed, and every
// form with one space inserted between two non-space characters. Duplicates
// are dropped and the result is capped at the engine's maximum.
func (e *Engine) GenerateVariations(name string) []string {
	out := []string{name}
	if name == "" {
		return out
	}
	seen := map[string]struct{}{name: {}}
	add := func(v string) bool {
		if len(out) >= e.maxVariations {
			return false
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
		return true
	}

	runes := []rune(name)
	for i, r := range runes {
		for _, g := range e.confusable[r] {
			for _, alt := range e.groups[g] {
				// An uppercase rune is also tried against the uppercase
				// form of each alternative.
				alts := []rune{alt}
				if unicode.IsUpper(r) && unicode.ToUpper(alt) != alt {
					alts = []rune{unicode.ToUpper(alt), alt}
				}
				for _, a := range alts {
					if a == r {
						continue
					}
					runes[i] = a
					ok := add(string(runes))
					runes[i] = r
					if !ok {
						return out
					}
				}
			}
		}
	}

	if joined := strings.Join(strings.Fields(name), ""); joined != "" {
		if !add(joined) {
			return out
		}
	}

	for i := 1; i < len(runes); i++ {
		if unicode.IsSpace(runes[i-1]) || unicode.IsSpace(runes[i]) {
			continue
		}
		if !add(string(runes[:i]) + " " + string(runes[i:])) {
			return out
		}
	}
	return out
}

// ─── Matching ───────────────────────────────────────────────────────────────

// BestMatch returns the name from names with the highest [Engine.Similarity]
// to any variation of candidate. Earlier names win ties, so callers can
// order names by preference. ok is false when names is empty or nothing
// scores above zero.
func (e *Engine) BestMatch(candidate string, names []string) (name string, score float64, ok bool) {
	if candidate == "" {
		return "", 0, false
	}
	variations := e.GenerateVariations(candidate)
	for _, n := range names {
		for _, v := range variations {
			if s := e.Similarity(v, n); s > score+tieEpsilon {
				name, score = n, s
			}
		}
	}
	return name, score, name != ""
}

// WeightedMatch scores candidate against every name in known and recent:
//
//	score = 0.4*NGramSimilarity + 0.4*Similarity + 0.2*recencyBonus
//
// maximised over the variations of candidate. recencyBonus is 1 for the
// first entry of recent and decays linearly towards 0 at its end; names not
// in recent get 0. The best pair is returned if its score exceeds the
// weighted threshold. Equal scores are broken by Jaro-Winkler similarity to
// the raw candidate.
func (e *Engine) WeightedMatch(candidate string, known, recent []string) (name string, score float64, ok bool) {
	if strings.TrimSpace(candidate) == "" {
		return "", 0, false
	}

	bonus := make(map[string]float64, len(recent))
	for i, r := range recent {
		k := foldKey(r)
		if _, dup := bonus[k]; !dup {
			bonus[k] = 1 - float64(i)/float64(len(recent))
		}
	}

	pool := make([]string, 0, len(known)+len(recent))
	inPool := make(map[string]struct{}, cap(pool))
	for _, n := range append(append([]string(nil), known...), recent...) {
		k := foldKey(n)
		if k == "" {
			continue
		}
		if _, dup := inPool[k]; dup {
			continue
		}
		inPool[k] = struct{}{}
		pool = append(pool, n)
	}

	variations := e.GenerateVariations(candidate)
	best, bestScore, bestJW := "", -1.0, 0.0
	for _, n := range pool {
		s := 0.0
		for _, v := range variations {
			vs := ngramWeight*e.NGramSimilarity(v, n, e.ngramSize) + editWeight*e.Similarity(v, n)
			s = max(s, vs)
		}
		s += recencyWeight * bonus[foldKey(n)]

		switch {
		case s > bestScore+tieEpsilon:
			best, bestScore = n, s
			bestJW = jaroWinkler(candidate, n)
		case math.Abs(s-bestScore) <= tieEpsilon:
			if jw := jaroWinkler(candidate, n); jw > bestJW {
				best, bestJW = n, jw
			}
		}
	}

	if best == "" || bestScore <= e.weightedThreshold {
		return "", max(bestScore, 0), false
	}
	return best, bestScore, true
}

func jaroWinkler(a, b string) float64 {
	return matchr.JaroWinkler(strings.ToLower(a), strings.ToLower(b), false)
}

// ─── helpers ────────────────────────────────────────────────────────────────

// foldRunes lowercases s and drops apostrophes.
func foldRunes(s string) []rune {
	out := make([]rune, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		switch r {
		case '\'', '’', '‘', '`', '´':
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func foldKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
