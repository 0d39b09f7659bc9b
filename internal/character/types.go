// Package character provides the known-character database that speaker
// resolution matches OCR names against.
//
// A [Database] is an immutable snapshot built from a character file (YAML or
// TOML) plus the names previously promoted into a [LearnedStore]. It is
// replaced wholesale on reload, never mutated in place, so readers can hold a
// pointer to it without locking.
//
// Supported input formats:
//   - YAML character files ([LoadFile], [LoadFromReader] with [FormatYAML])
//   - TOML character files ([FormatTOML])
package character

import "time"

// Role classifies a character's place in the game's cast.
type Role string

const (
	// RoleMain is a main or party character.
	RoleMain Role = "main"

	// RoleNPC is a named non-player character.
	RoleNPC Role = "npc"

	// RoleNarrator is an in-game narrator voice.
	RoleNarrator Role = "narrator"

	// RoleLearned is a name promoted from repeated OCR observations.
	RoleLearned Role = "learned"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleMain, RoleNPC, RoleNarrator, RoleLearned:
		return true
	}
	return false
}

// Record describes one known speaker. Records are immutable once loaded.
type Record struct {
	// Name is the display name as it appears in dialogue boxes.
	Name string `yaml:"name" toml:"name" json:"name"`

	// LastName is optional; some games show only the given name.
	LastName string `yaml:"last_name,omitempty" toml:"last_name" json:"last_name,omitempty"`

	Role Role `yaml:"role" toml:"role" json:"role"`

	// Relationship describes the character's relation to the player
	// ("ally", "rival", "mentor", ...). Free text.
	Relationship string `yaml:"relationship,omitempty" toml:"relationship" json:"relationship,omitempty"`

	// Style is the speaking-style tag handed to translation backends
	// ("formal", "casual", "archaic", ...).
	Style string `yaml:"style,omitempty" toml:"style" json:"style,omitempty"`

	// Gender is a free-text gender tag used for pronoun choice in
	// translations.
	Gender string `yaml:"gender,omitempty" toml:"gender" json:"gender,omitempty"`

	// Aliases are alternative spellings or titles that resolve to Name.
	Aliases []string `yaml:"aliases,omitempty" toml:"aliases" json:"aliases,omitempty"`
}

// FullName returns "Name LastName", or Name alone when no last name is set.
func (r Record) FullName() string {
	if r.LastName == "" {
		return r.Name
	}
	return r.Name + " " + r.LastName
}

// File is the top-level structure of a character database file.
//
// Example:
//
//	game: "Final Fantasy XIV"
//	characters:
//	  - name: "Y'shtola"
//	    last_name: "Rhul"
//	    role: main
//	    style: formal
//	corrections:
//	  "Y'shtoIa": "Y'shtola"
type File struct {
	Game        string            `yaml:"game" toml:"game"`
	Characters  []Record          `yaml:"characters" toml:"characters"`
	Corrections map[string]string `yaml:"corrections" toml:"corrections"`
}

// LearnedName is a provisional speaker that crossed the promotion threshold
// and was persisted so it is known in later sessions.
type LearnedName struct {
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Description  string    `json:"description"`
	Confidence   float64   `json:"confidence"`
	Observations int       `json:"observations"`
	PromotedAt   time.Time `json:"promoted_at"`
}

// Record converts l into a database record with [RoleLearned] when no role
// was stored.
func (l LearnedName) Record() Record {
	role := l.Role
	if role == "" {
		role = RoleLearned
	}
	return Record{Name: l.Name, Role: role}
}
