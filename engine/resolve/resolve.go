// Package resolve maps entity names typed at the playtest prompt to entity
// references.
package resolve

import (
	"fmt"
	"strings"

	"github.com/nathoo/parley/engine/state"
	"github.com/nathoo/parley/types"
)

// AmbiguityError indicates multiple entities matched a name.
type AmbiguityError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	names := strings.Join(e.Candidates, ", ")
	return fmt.Sprintf("which %s? (%s)", e.Name, names)
}

// NotFoundError indicates no entity matched a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("nobody here called %q", e.Name)
}

// Entity resolves a name to an entity reference.
//
// An exact id wins. Otherwise the name is compared, case-insensitively, with
// each entity's display name, the words of that name, its aliases and its id
// with spaces read as underscores.
func Entity(w *state.World, name string) (types.EntityRef, error) {
	if _, ok := w.Entity(types.EntityRef(name)); ok {
		return types.EntityRef(name), nil
	}

	nameLower := strings.ToLower(strings.TrimSpace(name))
	var matches []types.EntityRef
	for _, e := range w.Entities() {
		if matchesName(e, nameLower) {
			matches = append(matches, e.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Name: name}
	case 1:
		return matches[0], nil
	default:
		c := make([]string, len(matches))
		for i, m := range matches {
			c[i] = string(m)
		}
		return "", &AmbiguityError{Name: name, Candidates: c}
	}
}

// NPC resolves a name like Entity but only accepts entities that offer a
// dialogue.
func NPC(w *state.World, name string) (types.EntityRef, error) {
	ref, err := Entity(w, name)
	if err != nil {
		return "", err
	}
	if _, ok := w.DialogueFor(ref); !ok {
		return "", fmt.Errorf("%s has nothing to say", w.DisplayName(ref))
	}
	return ref, nil
}

// matchesName checks if an entity matches the query (already lower case).
func matchesName(e state.Entity, nameLower string) bool {
	if e.Name != "" {
		entityNameLower := strings.ToLower(e.Name)
		if entityNameLower == nameLower {
			return true
		}
		// Word-based partial match: "guard" matches "Gate Guard".
		for _, word := range strings.Fields(entityNameLower) {
			if word == nameLower {
				return true
			}
		}
	}
	for _, alias := range e.Aliases {
		if strings.ToLower(alias) == nameLower {
			return true
		}
	}
	idLower := strings.ToLower(string(e.ID))
	if idLower == nameLower {
		return true
	}
	// Underscore normalization: "old man" matches entity ID "old_man".
	return strings.ReplaceAll(nameLower, " ", "_") == idLower
}
