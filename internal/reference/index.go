// Package reference holds the trusted chapter roster that AI-cleaned members
// are verified and enriched against.
package reference

import (
	"strings"

	"askgive/internal"
	"askgive/internal/util"
)

type Index struct {
	members []internal.Member
	keys    []string
	byKey   map[string]int
}

func BuildIndex(members []internal.Member) *Index {
	idx := &Index{
		members: make([]internal.Member, 0, len(members)),
		keys:    make([]string, 0, len(members)),
		byKey:   map[string]int{},
	}
	for _, m := range members {
		key := util.NameKey(m.Name)
		if key == "" {
			continue
		}
		idx.members = append(idx.members, m)
		idx.keys = append(idx.keys, key)
		if _, ok := idx.byKey[key]; !ok {
			idx.byKey[key] = len(idx.members) - 1
		}
	}
	return idx
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.members)
}

func (i *Index) Members() []internal.Member {
	if i == nil {
		return nil
	}
	out := make([]internal.Member, len(i.members))
	copy(out, i.members)
	return out
}

// Find returns the first reference member, in roster order, whose name equals
// the given name or contains it, both compared trimmed and case-insensitively.
// The containment rule is loose on purpose: "Jatin" resolves to whichever
// Jatin comes first in the roster.
func (i *Index) Find(name string) (internal.Member, bool) {
	if i == nil {
		return internal.Member{}, false
	}
	key := util.NameKey(name)
	if key == "" {
		return internal.Member{}, false
	}
	for n, refKey := range i.keys {
		if refKey == key || strings.Contains(refKey, key) {
			return i.members[n], true
		}
	}
	return internal.Member{}, false
}

// FindExact only honours the equality rule.
func (i *Index) FindExact(name string) (internal.Member, bool) {
	if i == nil {
		return internal.Member{}, false
	}
	n, ok := i.byKey[util.NameKey(name)]
	if !ok {
		return internal.Member{}, false
	}
	return i.members[n], true
}
