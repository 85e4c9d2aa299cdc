package nostr

import "slices"

// Matches reports whether the event satisfies every present clause of the filter.
//
// Clauses are evaluated in the order ids, authors, kinds, since, until, tags and the first failing
// clause ends the evaluation. A tag clause fails when its name is not a single character, when its
// value set is empty, or when no event tag with that name carries one of the values.
func (f Filter) Matches(e Event) bool {
	if f.IDs != nil && !slices.Contains(f.IDs, e.ID) {
		return false
	}

	if f.Authors != nil && !slices.Contains(f.Authors, e.PubKey) {
		return false
	}

	if f.Kinds != nil && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}

	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}

	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}

	for name, values := range f.Tags {
		if !IsSingleCharTagName(name) || len(values) == 0 {
			return false
		}

		if !e.Tags.ContainsAny(name, values) {
			return false
		}
	}

	return true
}

// Match reports whether any filter of the set matches the event.
func (fs Filters) Match(e Event) bool {
	for _, f := range fs {
		if f.Matches(e) {
			return true
		}
	}

	return false
}
