package nostr

import (
	"errors"
	"math"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidFilter is returned when a filter is not a JSON object.
	ErrInvalidFilter = errors.New("filter is not a valid json object")

	// ErrInvalidFilterField is returned when a recognized filter field has the wrong shape.
	ErrInvalidFilterField = errors.New("filter field has an invalid shape")

	// ErrEmptyKinds is returned when "kinds" is present but empty.
	ErrEmptyKinds = errors.New("filter kinds must not be empty")

	// ErrInvalidTagFilterName is returned for tag filter keys that are not '#' plus one character.
	ErrInvalidTagFilterName = errors.New("tag filter name must be a single character")
)

const (
	fieldIDs     = "ids"
	fieldAuthors = "authors"
	fieldKinds   = "kinds"
	fieldSince   = "since"
	fieldUntil   = "until"
	fieldLimit   = "limit"
	tagPrefix    = "#"
)

// ParseFilter decodes a filter from its wire shape and validates the structure of every recognized field.
//
//   - ids, authors: arrays of strings
//   - kinds: non-empty array of non-negative whole numbers
//   - #<x>: array of strings, x must be exactly one character
//   - since, until, limit: whole numbers (limit must not be negative)
//
// Unknown fields are ignored and a null value counts as an absent field. The empty object {} is
// valid and matches every event.
func ParseFilter(data []byte) (Filter, error) {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Filter{}, ErrInvalidFilter
	}

	var filter Filter
	var err error

	for key, raw := range fields {
		if isJSONNull(raw) {
			continue
		}

		switch {
		case key == fieldIDs:
			filter.IDs, err = parseStrings(raw, key)
		case key == fieldAuthors:
			filter.Authors, err = parseStrings(raw, key)
		case key == fieldKinds:
			filter.Kinds, err = parseKinds(raw)
		case key == fieldSince:
			filter.Since, err = parseTimestamp(raw, key)
		case key == fieldUntil:
			filter.Until, err = parseTimestamp(raw, key)
		case key == fieldLimit:
			filter.Limit, err = parseLimit(raw)
		case strings.HasPrefix(key, tagPrefix):
			err = parseTagFilter(&filter, key, raw)
		}

		if err != nil {
			return Filter{}, err
		}
	}

	return filter, nil
}

// ParseFilters decodes and validates every raw filter, failing on the first invalid one.
func ParseFilters(raws []jsoniter.RawMessage) (Filters, error) {
	filters := make(Filters, 0, len(raws))

	for _, raw := range raws {
		filter, err := ParseFilter(raw)
		if err != nil {
			return nil, err
		}

		filters = append(filters, filter)
	}

	return filters, nil
}

func parseStrings(raw jsoniter.RawMessage, field string) ([]string, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Join(ErrInvalidFilterField, errors.New(field))
	}

	if values == nil {
		values = []string{}
	}

	return values, nil
}

func parseKinds(raw jsoniter.RawMessage) ([]int, error) {
	var numbers []float64
	if err := json.Unmarshal(raw, &numbers); err != nil {
		return nil, errors.Join(ErrInvalidFilterField, errors.New(fieldKinds))
	}

	if len(numbers) == 0 {
		return nil, ErrEmptyKinds
	}

	kinds := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if !isWholeNumber(n) || n < 0 || n > math.MaxInt32 {
			return nil, errors.Join(ErrInvalidFilterField, errors.New(fieldKinds))
		}

		kinds = append(kinds, int(n))
	}

	return kinds, nil
}

func parseTimestamp(raw jsoniter.RawMessage, field string) (*int64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || !isWholeNumber(n) {
		return nil, errors.Join(ErrInvalidFilterField, errors.New(field))
	}

	ts := int64(n)

	return &ts, nil
}

func parseLimit(raw jsoniter.RawMessage) (*int, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || !isWholeNumber(n) || n < 0 {
		return nil, errors.Join(ErrInvalidFilterField, errors.New(fieldLimit))
	}

	limit := int(math.Min(n, math.MaxInt32))

	return &limit, nil
}

func parseTagFilter(filter *Filter, key string, raw jsoniter.RawMessage) error {
	name := strings.TrimPrefix(key, tagPrefix)
	if !IsSingleCharTagName(name) {
		return ErrInvalidTagFilterName
	}

	values, err := parseStrings(raw, key)
	if err != nil {
		return err
	}

	if filter.Tags == nil {
		filter.Tags = make(map[string][]string)
	}

	filter.Tags[name] = values

	return nil
}

func isWholeNumber(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0) && math.Trunc(n) == n
}

// isJSONNull also covers the empty value jsoniter leaves in a RawMessage for a null field.
func isJSONNull(raw jsoniter.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
