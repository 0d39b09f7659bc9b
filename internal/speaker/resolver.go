// Package speaker resolves OCR speaker candidates to canonical characters and
// keeps the per-session speaker memory.
//
// Resolution tries, in order:
//
//  1. the mystery sentinel, which short-circuits everything else;
//  2. the literal OCR correction overrides of the character database;
//  3. an exact, case-insensitive database lookup;
//  4. a fuzzy lookup over OCR variations, accepted at similarity ≥ 0.85
//     (phonetically similar names are preferred on ties);
//  5. an existing provisional speaker of this session with the same name;
//  6. a recency-weighted match against the speakers seen in this session.
//     A recent provisional speaker is reused at the weighted threshold; a
//     known character is bound only when the weighted score also reaches
//     the recent-known floor (default 0.85);
//  7. a new provisional speaker.
//
// Every resolution updates the session [State]. Provisional speakers that
// recur are queued as promotion candidates; the resolver never writes to
// durable storage itself.
package speaker

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/similarity"
)

const (
	defaultFuzzyThreshold       = 0.85
	defaultRecentKnownThreshold = 0.85
)

// Resolution steps reported in [dialogue.ResolvedSpeaker.Match].
const (
	MatchCorrection  = "correction"
	MatchExact       = "exact"
	MatchFuzzy       = "fuzzy"
	MatchProvisional = "provisional"
	MatchRecent      = "recent"
	MatchNew         = "new"
)

// Option configures a [Resolver].
type Option func(*Resolver)

// WithFuzzyThreshold sets the minimum similarity for a fuzzy database
// match. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.fuzzyThreshold = threshold
	}
}

// WithRecentKnownThreshold sets the weighted score a recency-aided match
// needs before it binds a known character. Lower scores fall through to a
// new provisional speaker. Default: 0.85.
func WithRecentKnownThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.recentKnownThreshold = threshold
	}
}

// Resolver binds speaker candidates to a character database snapshot. It
// holds no mutable state of its own; all session memory lives in the
// [State] passed to [Resolver.Resolve].
type Resolver struct {
	db                   *character.Database
	engine               *similarity.Engine
	fuzzyThreshold       float64
	recentKnownThreshold float64
}

// NewResolver creates a resolver over db. A nil engine uses
// [similarity.New] defaults.
func NewResolver(db *character.Database, engine *similarity.Engine, opts ...Option) *Resolver {
	if engine == nil {
		engine = similarity.New()
	}
	r := &Resolver{
		db:                   db,
		engine:               engine,
		fuzzyThreshold:       defaultFuzzyThreshold,
		recentKnownThreshold: defaultRecentKnownThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Database returns the snapshot the resolver matches against.
func (r *Resolver) Database() *character.Database { return r.db }

// Resolve binds candidate to a speaker and records the sighting in state.
// It never fails: unmatched names become provisional speakers and empty or
// sentinel candidates become the mystery speaker.
func (r *Resolver) Resolve(candidate string, state *State) dialogue.ResolvedSpeaker {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" || trimmed == dialogue.MysteryName || dialogue.IsMysterySentinel(trimmed) {
		s := dialogue.Mystery()
		state.Observe(s.Name, s.Kind)
		return s
	}

	name := dialogue.CollapseRepeats(trimmed)
	resolved := r.match(trimmed, name, state)

	e := state.Observe(resolved.Name, resolved.Kind)
	if resolved.Kind == dialogue.SpeakerProvisional {
		resolved.Observations = e.Count
		resolved.FirstSeen = e.FirstSeen
		resolved.LastSeen = e.LastSeen
	}

	if resolved.Match == MatchNew {
		slog.Info("speaker: new provisional speaker", "candidate", candidate, "name", resolved.Name)
	} else {
		slog.Debug("speaker: resolved",
			"candidate", candidate,
			"name", resolved.Name,
			"kind", resolved.Kind,
			"match", resolved.Match,
			"score", resolved.Score,
		)
	}
	return resolved
}

func (r *Resolver) match(raw, name string, state *State) dialogue.ResolvedSpeaker {
	if fixed, ok := r.db.Correct(raw); ok {
		name = fixed
		if rec, ok := r.db.Lookup(fixed); ok {
			return known(rec, 1, MatchCorrection)
		}
	} else if fixed, ok := r.db.Correct(name); ok {
		name = fixed
		if rec, ok := r.db.Lookup(fixed); ok {
			return known(rec, 1, MatchCorrection)
		}
	}

	if rec, ok := r.db.Lookup(name); ok {
		return known(rec, 1, MatchExact)
	}

	if best, score, ok := r.engine.BestMatch(name, r.fuzzyPool(name)); ok && score >= r.fuzzyThreshold {
		if rec, ok := r.db.Lookup(best); ok {
			return known(rec, score, MatchFuzzy)
		}
	}

	if e, ok := state.Get(name); ok && e.Kind == dialogue.SpeakerProvisional {
		return provisional(e.Name, MatchProvisional)
	}

	if best, score, ok := r.engine.WeightedMatch(name, nil, state.RecentNames()); ok {
		if rec, ok := r.db.Lookup(best); ok {
			if score >= r.recentKnownThreshold {
				return known(rec, score, MatchRecent)
			}
			return provisional(name, MatchNew)
		}
		if e, ok := state.Get(best); ok && e.Kind == dialogue.SpeakerProvisional {
			p := provisional(e.Name, MatchRecent)
			p.Score = score
			return p
		}
	}

	return provisional(name, MatchNew)
}

// fuzzyPool orders the database names so that phonetic matches of name come
// first; BestMatch keeps the earliest name on equal scores.
func (r *Resolver) fuzzyPool(name string) []string {
	phonetic := r.db.PhoneticMatches(name)
	all := r.db.Names()
	pool := make([]string, 0, len(all))
	pool = append(pool, phonetic...)
	for _, n := range all {
		if !slices.Contains(phonetic, n) {
			pool = append(pool, n)
		}
	}
	return pool
}

func known(rec character.Record, score float64, match string) dialogue.ResolvedSpeaker {
	s := dialogue.Known(rec, score)
	s.Match = match
	return s
}

func provisional(name, match string) dialogue.ResolvedSpeaker {
	return dialogue.ResolvedSpeaker{Kind: dialogue.SpeakerProvisional, Name: name, Match: match}
}
