package character

import (
	"maps"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// Database is an immutable snapshot of the known speakers. All methods are
// safe for concurrent use, and all methods on a nil *Database behave like an
// empty database.
type Database struct {
	game        string
	records     []Record
	byKey       map[string]int
	corrections map[string]string
	phonetic    map[string][]int
}

// NewDatabase builds a snapshot from records, literal OCR correction
// overrides and previously learned names. Learned names already present as
// records or aliases are ignored. Later duplicates of a name are ignored;
// run [Validate] on file input to reject them instead.
func NewDatabase(game string, records []Record, corrections map[string]string, learned []LearnedName) *Database {
	db := &Database{
		game:        game,
		records:     make([]Record, 0, len(records)+len(learned)),
		byKey:       make(map[string]int, len(records)*2),
		corrections: make(map[string]string, len(corrections)),
		phonetic:    make(map[string][]int),
	}
	for _, r := range records {
		db.add(r)
	}
	for _, l := range learned {
		if strings.TrimSpace(l.Name) == "" {
			continue
		}
		db.add(l.Record())
	}
	for raw, fixed := range corrections {
		if raw == "" || fixed == "" {
			continue
		}
		db.corrections[raw] = fixed
	}
	return db
}

// add appends r unless its name is already indexed. Aliases and the full
// name are indexed as lookup keys pointing at the same record.
func (db *Database) add(r Record) {
	key := Fold(r.Name)
	if key == "" {
		return
	}
	if _, exists := db.byKey[key]; exists {
		return
	}
	r.Aliases = slices.Clone(r.Aliases)
	idx := len(db.records)
	db.records = append(db.records, r)
	db.byKey[key] = idx

	for _, k := range append([]string{r.FullName()}, r.Aliases...) {
		fk := Fold(k)
		if fk == "" {
			continue
		}
		if _, exists := db.byKey[fk]; !exists {
			db.byKey[fk] = idx
		}
	}

	for _, code := range phoneticCodes(key) {
		db.phonetic[code] = append(db.phonetic[code], idx)
	}
}

// WithLearned returns a new snapshot that additionally knows the given
// learned names. db itself is unchanged.
func (db *Database) WithLearned(learned ...LearnedName) *Database {
	if db == nil {
		return NewDatabase("", nil, nil, learned)
	}
	return NewDatabase(db.game, db.records, db.corrections, learned)
}

// Game returns the game title from the database file.
func (db *Database) Game() string {
	if db == nil {
		return ""
	}
	return db.game
}

// Len returns the number of distinct records.
func (db *Database) Len() int {
	if db == nil {
		return 0
	}
	return len(db.records)
}

// Contains reports whether name (case-insensitive) is a known name, full name
// or alias.
func (db *Database) Contains(name string) bool {
	_, ok := db.Lookup(name)
	return ok
}

// Lookup returns the record for name, matching names, full names and
// aliases case-insensitively.
func (db *Database) Lookup(name string) (Record, bool) {
	if db == nil {
		return Record{}, false
	}
	idx, ok := db.byKey[Fold(name)]
	if !ok {
		return Record{}, false
	}
	return db.records[idx], true
}

// Names returns the canonical names of all records in load order.
func (db *Database) Names() []string {
	if db == nil {
		return nil
	}
	names := make([]string, len(db.records))
	for i, r := range db.records {
		names[i] = r.Name
	}
	return names
}

// Records returns a copy of all records in load order.
func (db *Database) Records() []Record {
	if db == nil {
		return nil
	}
	return slices.Clone(db.records)
}

// Corrections returns a copy of the literal OCR correction overrides.
func (db *Database) Corrections() map[string]string {
	if db == nil {
		return map[string]string{}
	}
	return maps.Clone(db.corrections)
}

// Correct applies the literal correction override for raw, if any. The
// exact string is tried first, then its trimmed form.
func (db *Database) Correct(raw string) (string, bool) {
	if db == nil {
		return raw, false
	}
	if fixed, ok := db.corrections[raw]; ok {
		return fixed, true
	}
	if fixed, ok := db.corrections[strings.TrimSpace(raw)]; ok {
		return fixed, true
	}
	return raw, false
}

// PhoneticMatches returns the canonical names that share a Double Metaphone
// code with name, in load order.
func (db *Database) PhoneticMatches(name string) []string {
	if db == nil {
		return nil
	}
	seen := make(map[int]struct{})
	for _, code := range phoneticCodes(Fold(name)) {
		for _, idx := range db.phonetic[code] {
			seen[idx] = struct{}{}
		}
	}
	idxs := slices.Sorted(maps.Keys(seen))
	names := make([]string, len(idxs))
	for i, idx := range idxs {
		names[i] = db.records[idx].Name
	}
	return names
}

// Fold normalises a name for lookups: lower case, typographic apostrophes
// replaced, surrounding and repeated inner whitespace removed.
func Fold(name string) string {
	name = strings.ReplaceAll(name, "’", "'")
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// phoneticCodes returns the Double Metaphone codes of every word in key.
// Empty codes (words without consonants) are skipped.
func phoneticCodes(key string) []string {
	var codes []string
	for _, w := range strings.Fields(key) {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes = append(codes, p)
		}
		if s != "" && s != p {
			codes = append(codes, s)
		}
	}
	return codes
}
