package nostr

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Filter is a conjunctive query descriptor.
//
// A nil slice or pointer means the field is absent (vacuously true). A non-nil empty slice is
// present and matches nothing. Tags is keyed by the tag name without the leading '#'.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Since   *int64
	Until   *int64
	Limit   *int
	Tags    map[string][]string
}

// Filters is the filter set of one subscription or query, OR-ed together.
type Filters []Filter

// IsEmpty reports whether the filter has no field at all, such a filter matches every event.
func (f Filter) IsEmpty() bool {
	return f.IDs == nil && f.Authors == nil && f.Kinds == nil &&
		f.Since == nil && f.Until == nil && f.Limit == nil && len(f.Tags) == 0
}

// MarshalJSON encodes the filter in its NIP-01 wire shape.
func (f Filter) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any)

	if f.IDs != nil {
		fields["ids"] = f.IDs
	}

	if f.Authors != nil {
		fields["authors"] = f.Authors
	}

	if f.Kinds != nil {
		fields["kinds"] = f.Kinds
	}

	if f.Since != nil {
		fields["since"] = *f.Since
	}

	if f.Until != nil {
		fields["until"] = *f.Until
	}

	if f.Limit != nil {
		fields["limit"] = *f.Limit
	}

	for name, values := range f.Tags {
		if values == nil {
			values = []string{}
		}
		fields["#"+name] = values
	}

	// map keys are sorted by the std-compatible config, which keeps the output deterministic
	return json.Marshal(fields)
}

// UnmarshalJSON decodes and structurally validates a filter, see ParseFilter.
func (f *Filter) UnmarshalJSON(data []byte) error {
	parsed, err := ParseFilter(data)
	if err != nil {
		return err
	}

	*f = parsed

	return nil
}

// CanonicalKey returns a string that is equal for all filters with the same values, regardless of
// the order of (or duplicates in) the value sets.
func (f Filter) CanonicalKey() string {
	normalized := Filter{
		IDs:     sortedUnique(f.IDs),
		Authors: sortedUnique(f.Authors),
		Kinds:   sortedUnique(f.Kinds),
		Since:   f.Since,
		Until:   f.Until,
		Limit:   f.Limit,
	}

	if f.Tags != nil {
		normalized.Tags = make(map[string][]string, len(f.Tags))
		for name, values := range f.Tags {
			normalized.Tags[name] = sortedUnique(values)
		}
	}

	key, err := normalized.MarshalJSON()
	if err != nil {
		// only plain strings and numbers are marshaled, this cannot fail
		return ""
	}

	return string(key)
}

// CanonicalKey joins the canonical keys of all filters, preserving the filter order.
func (fs Filters) CanonicalKey() string {
	keys := make([]string, 0, len(fs))
	for _, f := range fs {
		keys = append(keys, f.CanonicalKey())
	}

	return "[" + strings.Join(keys, ",") + "]"
}

// sortedUnique mirrors the sanitizing of filter builders: sort, compact, clip. nil stays nil.
func sortedUnique[T int | string](values []T) []T {
	if values == nil {
		return nil
	}

	sanitized := slices.Clone(values)
	slices.Sort(sanitized)
	sanitized = slices.Compact(sanitized)
	sanitized = slices.Clip(sanitized)

	return sanitized
}

// IsSingleCharTagName reports whether name can be used in a tag filter. Only single-character tag
// names are indexed for matching.
func IsSingleCharTagName(name string) bool {
	return utf8.RuneCountInString(name) == 1
}
