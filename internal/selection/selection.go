// Package selection tracks the ids chosen for bulk actions.
package selection

import "slices"

// Set is a set of item ids. The zero value is empty and ready to use.
// Set is not safe for concurrent use; the collection controller guards it.
type Set struct {
	ids map[int64]struct{}
}

// SelectAll replaces the set with exactly the visible ids when checked,
// and empties it otherwise.
func (s *Set) SelectAll(visible []int64, checked bool) {
	s.ids = nil
	if !checked {
		return
	}
	for _, id := range visible {
		s.add(id)
	}
}

// Toggle adds or removes one id.
func (s *Set) Toggle(id int64, checked bool) {
	if checked {
		s.add(id)
		return
	}
	delete(s.ids, id)
}

func (s *Set) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Remove drops ids from the set. Unknown ids are ignored.
func (s *Set) Remove(ids ...int64) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

func (s *Set) Clear() {
	s.ids = nil
}

func (s *Set) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids in ascending order.
func (s *Set) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// AllSelected reports a non-empty selection whose size equals the number of
// visible rows. The check is by size only; ids selected on another page count.
func (s *Set) AllSelected(visible int) bool {
	return s.Len() > 0 && s.Len() == visible
}

// Indeterminate reports a non-empty selection smaller than the visible rows.
func (s *Set) Indeterminate(visible int) bool {
	return s.Len() > 0 && s.Len() < visible
}

func (s *Set) add(id int64) {
	if s.ids == nil {
		s.ids = make(map[int64]struct{})
	}
	s.ids[id] = struct{}{}
}
