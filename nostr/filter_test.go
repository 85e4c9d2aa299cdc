package nostr_test

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/fixtures"
)

func Test_ParseFilter_When_FilterIsValid(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		validate func(t *testing.T, f nostr.Filter)
	}{
		{
			name:    "empty_object_matches_all",
			payload: `{}`,
			validate: func(t *testing.T, f nostr.Filter) {
				assert.True(t, f.IsEmpty())
			},
		},
		{
			name:    "all_fields",
			payload: `{"ids":["a"],"authors":["b","c"],"kinds":[1,30023],"since":10,"until":20,"limit":5,"#e":["x"],"#p":[]}`,
			validate: func(t *testing.T, f nostr.Filter) {
				assert.Equal(t, []string{"a"}, f.IDs)
				assert.Equal(t, []string{"b", "c"}, f.Authors)
				assert.Equal(t, []int{1, 30023}, f.Kinds)
				assert.Equal(t, fixtures.Int64(10), f.Since)
				assert.Equal(t, fixtures.Int64(20), f.Until)
				assert.Equal(t, fixtures.Int(5), f.Limit)
				assert.Equal(t, []string{"x"}, f.Tags["e"])
				assert.NotNil(t, f.Tags["p"])
				assert.Empty(t, f.Tags["p"])
			},
		},
		{
			name:    "empty_ids_is_present",
			payload: `{"ids":[]}`,
			validate: func(t *testing.T, f nostr.Filter) {
				assert.NotNil(t, f.IDs)
				assert.Empty(t, f.IDs)
			},
		},
		{
			name:    "null_authors_is_absent",
			payload: `{"authors":null}`,
			validate: func(t *testing.T, f nostr.Filter) {
				assert.Nil(t, f.Authors)
			},
		},
		{
			name:    "null_fields_are_absent",
			payload: `{"ids":null,"kinds":null,"since":null,"until":null,"limit":null,"#e":null}`,
			validate: func(t *testing.T, f nostr.Filter) {
				assert.True(t, f.IsEmpty())
			},
		},
		{
			name:    "unknown_fields_are_ignored",
			payload: `{"search":"nostr","kinds":[1]}`,
			validate: func(t *testing.T, f nostr.Filter) {
				assert.Equal(t, []int{1}, f.Kinds)
			},
		},
		{
			name:    "whole_number_written_as_float",
			payload: `{"limit":10.0}`,
			validate: func(t *testing.T, f nostr.Filter) {
				assert.Equal(t, fixtures.Int(10), f.Limit)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			f, err := nostr.ParseFilter([]byte(tc.payload))

			// assert
			require.NoError(t, err)
			tc.validate(t, f)
		})
	}
}

func Test_ParseFilter_When_FilterIsInvalid(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		expectedErr error
	}{
		{name: "array", payload: `[]`, expectedErr: nostr.ErrInvalidFilter},
		{name: "string", payload: `"x"`, expectedErr: nostr.ErrInvalidFilter},
		{name: "null", payload: `null`, expectedErr: nostr.ErrInvalidFilter},
		{name: "ids_not_array", payload: `{"ids":"a"}`, expectedErr: nostr.ErrInvalidFilterField},
		{name: "authors_with_number", payload: `{"authors":[1]}`, expectedErr: nostr.ErrInvalidFilterField},
		{name: "kinds_empty", payload: `{"kinds":[]}`, expectedErr: nostr.ErrEmptyKinds},
		{name: "kinds_negative", payload: `{"kinds":[-1]}`, expectedErr: nostr.ErrInvalidFilterField},
		{name: "kinds_fraction", payload: `{"kinds":[1.5]}`, expectedErr: nostr.ErrInvalidFilterField},
		{name: "kinds_string", payload: `{"kinds":["1"]}`, expectedErr: nostr.ErrInvalidFilterField},
		{name: "since_string", payload: `{"since":"10"}`, expectedErr: nostr.ErrInvalidFilterField},
		{name: "limit_negative", payload: `{"limit":-1}`, expectedErr: nostr.ErrInvalidFilterField},
		{name: "multi_char_tag", payload: `{"#ee":["x"]}`, expectedErr: nostr.ErrInvalidTagFilterName},
		{name: "empty_tag_name", payload: `{"#":["x"]}`, expectedErr: nostr.ErrInvalidTagFilterName},
		{name: "tag_values_not_strings", payload: `{"#e":[1]}`, expectedErr: nostr.ErrInvalidFilterField},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := nostr.ParseFilter([]byte(tc.payload))

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_ParseFilters_When_OneFilterIsInvalid_FailsAll(t *testing.T) {
	// arrange
	raws := []jsoniter.RawMessage{
		jsoniter.RawMessage(`{"kinds":[1]}`),
		jsoniter.RawMessage(`{"#ab":["x"]}`),
	}

	// act
	filters, err := nostr.ParseFilters(raws)

	// assert
	assert.ErrorIs(t, err, nostr.ErrInvalidTagFilterName)
	assert.Nil(t, filters)
}

func Test_Filter_MarshalJSON_RoundTrips_Presence(t *testing.T) {
	// arrange
	original := nostr.Filter{
		IDs:   []string{},
		Kinds: []int{1},
		Limit: fixtures.Int(0),
		Tags:  map[string][]string{"e": {"x"}},
	}

	// act
	payload, err := original.MarshalJSON()
	require.NoError(t, err)
	parsed, err := nostr.ParseFilter(payload)

	// assert
	require.NoError(t, err)
	assert.Equal(t, `{"#e":["x"],"ids":[],"kinds":[1],"limit":0}`, string(payload))
	assert.Equal(t, original, parsed)
}

func Test_Filter_CanonicalKey_When_ValueOrderDiffers(t *testing.T) {
	// arrange
	a := nostr.Filter{Authors: []string{"b", "a", "a"}, Kinds: []int{3, 1}, Tags: map[string][]string{"p": {"y", "x"}}}
	b := nostr.Filter{Authors: []string{"a", "b"}, Kinds: []int{1, 3}, Tags: map[string][]string{"p": {"x", "y"}}}
	c := nostr.Filter{Authors: []string{"a", "b"}, Kinds: []int{1}}

	// act / assert
	assert.Equal(t, a.CanonicalKey(), b.CanonicalKey())
	assert.NotEqual(t, a.CanonicalKey(), c.CanonicalKey())
	assert.Equal(t, []string{"b", "a", "a"}, a.Authors, "canonicalization must not mutate the filter")
}

func Test_Filter_CanonicalKey_Distinguishes_Absent_From_Empty(t *testing.T) {
	absent := nostr.Filter{}
	empty := nostr.Filter{IDs: []string{}}

	assert.NotEqual(t, absent.CanonicalKey(), empty.CanonicalKey())
}
