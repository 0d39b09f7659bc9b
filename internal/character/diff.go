package character

import "slices"

// DatabaseDiff describes what changed between two database snapshots.
type DatabaseDiff struct {
	Added              []string `json:"added,omitempty"`
	Removed            []string `json:"removed,omitempty"`
	Changed            []string `json:"changed,omitempty"` // same name, different role/style/relationship/gender/aliases
	CorrectionsChanged bool     `json:"corrections_changed"`
}

// Empty reports whether the two snapshots are equivalent.
func (d DatabaseDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && !d.CorrectionsChanged
}

// Diff compares old and new snapshots by canonical name. Either may be nil.
// Name lists are sorted.
func Diff(old, new *Database) DatabaseDiff {
	d := DatabaseDiff{}

	oldRecs := make(map[string]Record, old.Len())
	for _, r := range old.Records() {
		oldRecs[Fold(r.Name)] = r
	}
	newRecs := make(map[string]Record, new.Len())
	for _, r := range new.Records() {
		newRecs[Fold(r.Name)] = r
	}

	for key, o := range oldRecs {
		n, ok := newRecs[key]
		if !ok {
			d.Removed = append(d.Removed, o.Name)
			continue
		}
		if recordChanged(o, n) {
			d.Changed = append(d.Changed, n.Name)
		}
	}
	for key, n := range newRecs {
		if _, ok := oldRecs[key]; !ok {
			d.Added = append(d.Added, n.Name)
		}
	}

	oc, nc := old.Corrections(), new.Corrections()
	if len(oc) != len(nc) {
		d.CorrectionsChanged = true
	} else {
		for k, v := range oc {
			if nc[k] != v {
				d.CorrectionsChanged = true
				break
			}
		}
	}

	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d
}

func recordChanged(a, b Record) bool {
	return a.LastName != b.LastName ||
		a.Role != b.Role ||
		a.Relationship != b.Relationship ||
		a.Style != b.Style ||
		a.Gender != b.Gender ||
		!slices.Equal(a.Aliases, b.Aliases)
}
