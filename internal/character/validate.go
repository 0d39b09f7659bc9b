package character

import (
	"errors"
	"fmt"
)

// Validate checks a character [File] for required fields and consistency.
//
// Rules:
//   - The file must declare at least one character.
//   - Every name must be non-empty and unique (case-insensitive, aliases included).
//   - A non-empty role must be a recognised [Role].
//   - Correction overrides must map a non-empty string to a non-empty string.
func Validate(f *File) error {
	if f == nil {
		return errors.New("character file must not be nil")
	}
	var errs []error

	if len(f.Characters) == 0 {
		errs = append(errs, errors.New("characters: at least one character is required"))
	}

	seen := make(map[string]int, len(f.Characters))
	for i, c := range f.Characters {
		prefix := fmt.Sprintf("characters[%d]", i)
		key := Fold(c.Name)
		if key == "" {
			errs = append(errs, fmt.Errorf("%s.name must not be empty", prefix))
			continue
		}
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of characters[%d]", prefix, c.Name, prev))
		}
		seen[key] = i
		if c.Role != "" && !c.Role.IsValid() {
			errs = append(errs, fmt.Errorf("%s.role %q is invalid; valid values: main, npc, narrator, learned", prefix, c.Role))
		}
	}

	aliasOwner := make(map[string]int)
	for i, c := range f.Characters {
		for j, a := range c.Aliases {
			key := Fold(a)
			if key == "" {
				errs = append(errs, fmt.Errorf("characters[%d].aliases[%d] must not be empty", i, j))
				continue
			}
			if owner, ok := seen[key]; ok && owner != i {
				errs = append(errs, fmt.Errorf("characters[%d].aliases[%d] %q collides with characters[%d]", i, j, a, owner))
				continue
			}
			if owner, ok := aliasOwner[key]; ok && owner != i {
				errs = append(errs, fmt.Errorf("characters[%d].aliases[%d] %q is also an alias of characters[%d]", i, j, a, owner))
				continue
			}
			aliasOwner[key] = i
		}
	}

	for raw, fixed := range f.Corrections {
		if raw == "" || fixed == "" {
			errs = append(errs, fmt.Errorf("corrections: %q -> %q must both be non-empty", raw, fixed))
		}
	}

	return errors.Join(errs...)
}
