package postgresengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

func givenBuilderStore(t *testing.T, options ...Option) *EventStore {
	es, err := newEventStore(nil, options...)
	require.NoError(t, err)

	return es
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func Test_BuildSelectQuery_When_SingleFilter(t *testing.T) {
	// arrange
	es := givenBuilderStore(t)
	filters := nostr.Filters{{
		IDs:     []string{"a1"},
		Authors: []string{"pk1", "pk2"},
		Kinds:   []int{1, 7},
		Since:   int64Ptr(100),
		Until:   int64Ptr(200),
		Limit:   intPtr(10),
		Tags:    map[string][]string{"e": {"root", "it's"}},
	}}

	// act
	sqlQuery, satisfiable, err := es.buildSelectQuery(filters)

	// assert
	require.NoError(t, err)
	assert.True(t, satisfiable)
	assert.Contains(t, sqlQuery, `FROM "events"`)
	assert.Contains(t, sqlQuery, `("id" IN ('a1'))`)
	assert.Contains(t, sqlQuery, `("pubkey" IN ('pk1', 'pk2'))`)
	assert.Contains(t, sqlQuery, `("kind" IN (1, 7))`)
	assert.Contains(t, sqlQuery, `("created_at" >= 100)`)
	assert.Contains(t, sqlQuery, `("created_at" <= 200)`)
	assert.Contains(t, sqlQuery, `"tag_index" && '{"e:root","e:it''s"}'::text[]`)
	assert.Contains(t, sqlQuery, `ORDER BY "created_at" DESC, "id" ASC LIMIT 10`)
	assert.Contains(t, sqlQuery, `AS "matches"`)
}

func Test_BuildSelectQuery_When_MultipleFilters_UnionsThem(t *testing.T) {
	// arrange
	es := givenBuilderStore(t, WithTableName("relay_events"))
	filters := nostr.Filters{{Kinds: []int{0}, Limit: intPtr(1)}, {Kinds: []int{1}}}

	// act
	sqlQuery, satisfiable, err := es.buildSelectQuery(filters)

	// assert
	require.NoError(t, err)
	assert.True(t, satisfiable)
	assert.Contains(t, sqlQuery, " UNION ")
	assert.Contains(t, sqlQuery, `FROM "relay_events"`)
	assert.Contains(t, sqlQuery, "LIMIT 1")
}

func Test_BuildSelectQuery_When_FilterCannotMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter nostr.Filter
	}{
		{name: "empty_ids", filter: nostr.Filter{IDs: []string{}}},
		{name: "empty_authors", filter: nostr.Filter{Authors: []string{}}},
		{name: "empty_tag_values", filter: nostr.Filter{Tags: map[string][]string{"e": {}}}},
		{name: "multi_char_tag", filter: nostr.Filter{Tags: map[string][]string{"ee": {"x"}}}},
		{name: "zero_limit", filter: nostr.Filter{Limit: intPtr(0)}},
	}

	es := givenBuilderStore(t)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, satisfiable, err := es.buildSelectQuery(nostr.Filters{tc.filter})

			// assert
			require.NoError(t, err)
			assert.False(t, satisfiable)
		})
	}
}

func Test_BuildSelectQuery_When_OneOfTwoFiltersCannotMatch(t *testing.T) {
	// arrange
	es := givenBuilderStore(t)

	// act
	sqlQuery, satisfiable, err := es.buildSelectQuery(nostr.Filters{{IDs: []string{}}, {Kinds: []int{1}}})

	// assert
	require.NoError(t, err)
	assert.True(t, satisfiable)
	assert.NotContains(t, sqlQuery, "UNION")
}

func Test_BuildInsertQuery(t *testing.T) {
	// arrange
	es := givenBuilderStore(t)
	regular := nostr.Event{ID: "id1", PubKey: "pk", CreatedAt: 5, Kind: 1, Tags: nostr.Tags{{"p", "bob"}, {"long", "x"}}, Content: "a'b", Sig: "s"}
	metadata := nostr.Event{ID: "id2", PubKey: "pk", CreatedAt: 5, Kind: 0, Content: "{}", Sig: "s"}

	// act
	regularSQL, err := es.buildInsertQuery(regular)
	require.NoError(t, err)
	metadataSQL, err := es.buildInsertQuery(metadata)
	require.NoError(t, err)

	// assert
	assert.Contains(t, regularSQL, `INSERT INTO "events"`)
	assert.Contains(t, regularSQL, `'[["p","bob"],["long","x"]]'::jsonb`)
	assert.Contains(t, regularSQL, `'{"p:bob"}'::text[]`)
	assert.Contains(t, regularSQL, `'a''b'`)
	assert.Contains(t, regularSQL, "NULL")
	assert.Contains(t, regularSQL, "ON CONFLICT DO NOTHING")

	assert.Contains(t, metadataSQL, `'[]'::jsonb`)
	assert.Contains(t, metadataSQL, `'pk:0'`)
}

func Test_BuildReplaceQuery(t *testing.T) {
	// arrange
	es := givenBuilderStore(t)
	event := nostr.Event{ID: "id3", PubKey: "pk", CreatedAt: 9, Kind: 30001, Tags: nostr.Tags{{"d", "x"}}, Sig: "s"}
	key, err := eventstore.ReplaceKeyOf(event)
	require.NoError(t, err)

	// act
	sqlQuery, err := es.buildReplaceQuery(event, key)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `'pk:30001:x'`)
	assert.Contains(t, sqlQuery, `ON CONFLICT (replace_key) DO UPDATE SET`)
	assert.Contains(t, sqlQuery, `"id"="excluded"."id"`)
}

func Test_BuildDeleteQueries(t *testing.T) {
	// arrange
	es := givenBuilderStore(t)

	// act
	byID, err := es.buildDeleteByIDQuery("abc")
	require.NoError(t, err)
	byKind, err := es.buildDeleteByPubkeyAndKindQuery("pk", 3)
	require.NoError(t, err)
	byKey, err := es.buildDeleteByReplaceKeyQuery(eventstore.ReplaceKey{PubKey: "pk", Kind: 30000, DTag: "", HasD: true})
	require.NoError(t, err)
	truncate, err := es.buildTruncateQuery()
	require.NoError(t, err)

	// assert
	assert.Equal(t, `DELETE FROM "events" WHERE ("id" = 'abc')`, byID)
	assert.Equal(t, `DELETE FROM "events" WHERE (("pubkey" = 'pk') AND ("kind" = 3))`, byKind)
	assert.Equal(t, `DELETE FROM "events" WHERE ("replace_key" = 'pk:30000:')`, byKey)
	assert.Equal(t, `TRUNCATE "events"`, truncate)
}

func Test_SchemaStatements_Use_TableName(t *testing.T) {
	// arrange
	es := givenBuilderStore(t, WithTableName("relay_events"))

	// act
	statements := es.SchemaStatements()

	// assert
	require.Len(t, statements, 5)
	assert.Contains(t, statements[0], "CREATE TABLE IF NOT EXISTS relay_events")
	assert.Contains(t, statements[4], "relay_events_tag_index_idx ON relay_events USING gin (tag_index)")
	for _, statement := range statements {
		assert.NotContains(t, statement, tablePlaceholder)
	}
}

func Test_WithTableName_When_NameIsInvalid(t *testing.T) {
	_, err := newEventStore(nil, WithTableName(""))
	assert.ErrorIs(t, err, eventstore.ErrEmptyEventsTableName)

	_, err = newEventStore(nil, WithTableName(`events"; DROP TABLE x; --`))
	assert.ErrorIs(t, err, ErrInvalidTableName)
}
