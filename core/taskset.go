package core

import (
	"maps"
	"slices"
)

// TaskSet is a set of task handles. The zero value is not usable; create
// one with NewTaskSet or make(TaskSet).
type TaskSet map[*Handle]struct{}

// NewTaskSet returns a set containing handles. Nil handles are skipped.
func NewTaskSet(handles ...*Handle) TaskSet {
	s := make(TaskSet, len(handles))
	for _, h := range handles {
		s.Add(h)
	}
	return s
}

// Add inserts h. Adding a nil handle is a no-op.
func (s TaskSet) Add(h *Handle) {
	if h == nil {
		return
	}
	s[h] = struct{}{}
}

// Remove deletes h from the set.
func (s TaskSet) Remove(h *Handle) {
	delete(s, h)
}

// Has reports whether h is a member.
func (s TaskSet) Has(h *Handle) bool {
	_, ok := s[h]
	return ok
}

// Len returns the number of members.
func (s TaskSet) Len() int {
	return len(s)
}

// Difference returns a new set with the members of s that are not in other.
func (s TaskSet) Difference(other TaskSet) TaskSet {
	out := make(TaskSet, len(s))
	for h := range s {
		if !other.Has(h) {
			out[h] = struct{}{}
		}
	}
	return out
}

// Union returns a new set with the members of both sets.
func (s TaskSet) Union(other TaskSet) TaskSet {
	out := make(TaskSet, len(s)+len(other))
	maps.Copy(out, s)
	maps.Copy(out, other)
	return out
}

// Clone returns a shallow copy of s.
func (s TaskSet) Clone() TaskSet {
	return maps.Clone(s)
}

// Handles returns the members ordered by submission id.
func (s TaskSet) Handles() []*Handle {
	out := slices.Collect(maps.Keys(s))
	slices.SortFunc(out, func(a, b *Handle) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return out
}
