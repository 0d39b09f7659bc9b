// Package dialogue defines the value types shared by the classifier, the
// cutscene detector, the speaker resolver and the translation cache.
//
// A [DialogueLine] is created once per OCR sample and is never mutated after
// classification; resolution produces a copy with [DialogueLine.Speaker] set.
package dialogue

import (
	"time"

	"github.com/MrWong99/lorelens/internal/character"
)

// Type classifies a block of OCR text.
type Type string

const (
	// TypeNormal is narration or any text without an attributable speaker.
	TypeNormal Type = "normal"

	// TypeCharacter is a line spoken by an identified (or mystery) speaker.
	TypeCharacter Type = "character"

	// TypeChoice is a player choice menu.
	TypeChoice Type = "choice"

	// TypeSystem is a system or UI message (saves, quest updates, item pickups).
	TypeSystem Type = "system"
)

// IsValid reports whether t is a recognised dialogue type.
func (t Type) IsValid() bool {
	switch t {
	case TypeNormal, TypeCharacter, TypeChoice, TypeSystem:
		return true
	}
	return false
}

// SpeakerKind distinguishes the three resolution outcomes of a speaker.
type SpeakerKind string

const (
	// SpeakerKnown is bound to a record in the character database.
	SpeakerKnown SpeakerKind = "known"

	// SpeakerProvisional is a name seen in OCR output but not in the database.
	SpeakerProvisional SpeakerKind = "provisional"

	// SpeakerMystery is the canonical intentionally-unidentified speaker.
	SpeakerMystery SpeakerKind = "mystery"
)

// MysteryName is the display name used for the mystery speaker.
const MysteryName = "???"

// ResolvedSpeaker is the outcome of speaker resolution.
type ResolvedSpeaker struct {
	Kind SpeakerKind `json:"kind"`

	// Name is the canonical database name for known speakers, the observed
	// name for provisional ones and [MysteryName] for the mystery speaker.
	Name string `json:"name"`

	// Record is set for known speakers only.
	Record *character.Record `json:"record,omitempty"`

	// Observations, FirstSeen and LastSeen are set for provisional speakers.
	Observations int       `json:"observations,omitempty"`
	FirstSeen    time.Time `json:"first_seen,omitzero"`
	LastSeen     time.Time `json:"last_seen,omitzero"`

	// Score is the match score that produced a known binding (1 for exact).
	Score float64 `json:"score,omitempty"`

	// Match names the resolution step that produced the speaker ("exact",
	// "correction", "fuzzy", "recent", "provisional", "new").
	Match string `json:"match,omitempty"`
}

// Mystery returns the mystery speaker sentinel.
func Mystery() ResolvedSpeaker {
	return ResolvedSpeaker{Kind: SpeakerMystery, Name: MysteryName, Match: "sentinel"}
}

// Known returns a speaker bound to rec.
func Known(rec character.Record, score float64) ResolvedSpeaker {
	r := rec
	return ResolvedSpeaker{Kind: SpeakerKnown, Name: rec.Name, Record: &r, Score: score}
}

// IsMystery reports whether s is the mystery sentinel.
func (s ResolvedSpeaker) IsMystery() bool { return s.Kind == SpeakerMystery }

// CacheTag returns the speaker component used in translation cache keys.
func (s *ResolvedSpeaker) CacheTag() string {
	if s == nil {
		return ""
	}
	return s.Name
}

// DialogueLine is the classified form of one OCR sample.
type DialogueLine struct {
	// Raw is the OCR text exactly as received.
	Raw string `json:"raw"`

	Type Type `json:"type"`

	// SpeakerCandidate is the unvalidated name extracted from Raw.
	SpeakerCandidate string `json:"speaker_candidate,omitempty"`

	// Speaker is set once the candidate has been resolved, or directly by the
	// classifier for mystery sentinels.
	Speaker *ResolvedSpeaker `json:"speaker,omitempty"`

	// Content is the text to translate, without the speaker prefix.
	Content string `json:"content"`

	// Choices holds the individual options of a TypeChoice line.
	Choices []string `json:"choices,omitempty"`

	// Separator is the rule that split speaker and content ("colon",
	// "dash", "en_dash", "fullwidth_colon", "cutscene:two_line", ...).
	Separator string `json:"separator,omitempty"`

	// Empty marks malformed (empty or whitespace-only) input.
	Empty bool `json:"empty,omitempty"`

	// Deferred marks a split rejected as a transient OCR artifact, e.g. a
	// purely numeric speaker. A later OCR pass usually reads it correctly.
	Deferred bool `json:"deferred,omitempty"`
}

// WithSpeaker returns a copy of l with the resolved speaker attached.
func (l DialogueLine) WithSpeaker(s ResolvedSpeaker) DialogueLine {
	l.Speaker = &s
	return l
}

// Translatable reports whether l carries content worth sending to a
// translation backend.
func (l DialogueLine) Translatable() bool {
	return !l.Empty && !l.Deferred && l.Content != ""
}
