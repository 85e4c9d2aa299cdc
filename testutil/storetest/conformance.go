package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/fixtures"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) eventstore.Store

// Run executes the conformance suite against the stores produced by newStore.
//
//nolint:funlen
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("save_then_query_by_id", func(t *testing.T) {
		// arrange
		store := newStore(t)
		event := fixtures.GivenAuthor(t).TextNote(t, 1000, "hello", nostr.Tag{"t", "go"})

		// act
		saved, err := store.SaveEvent(ctx, event)
		require.NoError(t, err)
		found, err := store.QueryEvents(ctx, nostr.Filters{{IDs: []string{event.ID}}})

		// assert
		require.NoError(t, err)
		assert.True(t, saved)
		require.Len(t, found, 1)
		assert.Equal(t, event, found[0])
	})

	t.Run("save_twice_reports_duplicate", func(t *testing.T) {
		// arrange
		store := newStore(t)
		event := fixtures.GivenAuthor(t).TextNote(t, 1000, "hello")
		_, err := store.SaveEvent(ctx, event)
		require.NoError(t, err)

		// act
		saved, err := store.SaveEvent(ctx, event)

		// assert
		require.NoError(t, err)
		assert.False(t, saved)
	})

	t.Run("query_orders_newest_first_and_applies_limit_per_filter", func(t *testing.T) {
		// arrange
		store := newStore(t)
		alice := fixtures.GivenAuthor(t)
		bob := fixtures.GivenAuthor(t)
		a1 := alice.TextNote(t, 100, "a1")
		a2 := alice.TextNote(t, 300, "a2")
		a3 := alice.TextNote(t, 200, "a3")
		b1 := bob.TextNote(t, 150, "b1")
		for _, e := range []nostr.Event{a1, a2, a3, b1} {
			_, err := store.SaveEvent(ctx, e)
			require.NoError(t, err)
		}

		// act
		found, err := store.QueryEvents(ctx, nostr.Filters{
			{Authors: []string{alice.PubKey}, Limit: fixtures.Int(2)},
			{Authors: []string{bob.PubKey}},
		})

		// assert
		require.NoError(t, err)
		assert.Equal(t, []string{a2.ID, a3.ID, b1.ID}, ids(found))
	})

	t.Run("query_returns_union_without_duplicates", func(t *testing.T) {
		// arrange
		store := newStore(t)
		event := fixtures.GivenAuthor(t).TextNote(t, 100, "x", nostr.Tag{"e", "root"})
		_, err := store.SaveEvent(ctx, event)
		require.NoError(t, err)

		// act
		found, err := store.QueryEvents(ctx, nostr.Filters{
			{Kinds: []int{1}},
			{Tags: map[string][]string{"e": {"root"}}},
		})

		// assert
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("query_honours_every_filter_field", func(t *testing.T) {
		// arrange
		store := newStore(t)
		alice := fixtures.GivenAuthor(t)
		hit := alice.TextNote(t, 500, "hit", nostr.Tag{"p", "bob"}, nostr.Tag{"e", "root"})
		wrongTag := alice.TextNote(t, 500, "wrong tag", nostr.Tag{"p", "carol"})
		tooOld := alice.TextNote(t, 10, "too old", nostr.Tag{"p", "bob"})
		wrongKind := alice.Event(t, 7, 500, "+", nostr.Tag{"p", "bob"})
		for _, e := range []nostr.Event{hit, wrongTag, tooOld, wrongKind} {
			_, err := store.SaveEvent(ctx, e)
			require.NoError(t, err)
		}

		// act
		found, err := store.QueryEvents(ctx, nostr.Filters{{
			Authors: []string{alice.PubKey},
			Kinds:   []int{1},
			Since:   fixtures.Int64(100),
			Until:   fixtures.Int64(1000),
			Tags:    map[string][]string{"p": {"bob", "dave"}, "e": {"root"}},
		}})

		// assert
		require.NoError(t, err)
		assert.Equal(t, []string{hit.ID}, ids(found))
	})

	t.Run("query_with_empty_value_set_matches_nothing", func(t *testing.T) {
		// arrange
		store := newStore(t)
		_, err := store.SaveEvent(ctx, fixtures.GivenAuthor(t).TextNote(t, 1, "x"))
		require.NoError(t, err)

		// act
		found, err := store.QueryEvents(ctx, nostr.Filters{{IDs: []string{}}})

		// assert
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("query_with_empty_filter_matches_everything", func(t *testing.T) {
		// arrange
		store := newStore(t)
		author := fixtures.GivenAuthor(t)
		for i := range 3 {
			_, err := store.SaveEvent(ctx, author.TextNote(t, int64(i), "x"))
			require.NoError(t, err)
		}

		// act
		found, err := store.QueryEvents(ctx, nostr.Filters{{}})

		// assert
		require.NoError(t, err)
		assert.Len(t, found, 3)
	})

	t.Run("delete_event", func(t *testing.T) {
		// arrange
		store := newStore(t)
		event := fixtures.GivenAuthor(t).TextNote(t, 1, "x")
		_, err := store.SaveEvent(ctx, event)
		require.NoError(t, err)

		// act
		deleted, err := store.DeleteEvent(ctx, event.ID)
		require.NoError(t, err)
		deletedAgain, err := store.DeleteEvent(ctx, event.ID)
		require.NoError(t, err)

		// assert
		assert.True(t, deleted)
		assert.False(t, deletedAgain)
		assert.Empty(t, queryAll(t, store))
	})

	t.Run("delete_by_pubkey_and_kind", func(t *testing.T) {
		// arrange
		store := newStore(t)
		alice := fixtures.GivenAuthor(t)
		metadata := alice.Metadata(t, 1, "alice")
		note := alice.TextNote(t, 2, "kept")
		for _, e := range []nostr.Event{metadata, note} {
			_, err := store.SaveEvent(ctx, e)
			require.NoError(t, err)
		}

		// act
		deleted, err := store.DeleteEventsByPubkeyAndKind(ctx, alice.PubKey, nostr.KindMetadata)

		// assert
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Equal(t, []string{note.ID}, ids(queryAll(t, store)))
	})

	t.Run("delete_by_pubkey_kind_and_d_tag", func(t *testing.T) {
		// arrange
		store := newStore(t)
		alice := fixtures.GivenAuthor(t)
		first := alice.Addressable(t, 30001, 1, "x", "first")
		other := alice.Addressable(t, 30001, 2, "y", "other")
		for _, e := range []nostr.Event{first, other} {
			_, err := store.SaveEvent(ctx, e)
			require.NoError(t, err)
		}

		// act
		deleted, err := store.DeleteEventsByPubkeyKindAndDTag(ctx, alice.PubKey, 30001, "x")
		require.NoError(t, err)
		deletedMissing, err := store.DeleteEventsByPubkeyKindAndDTag(ctx, alice.PubKey, 30001, "z")
		require.NoError(t, err)

		// assert
		assert.True(t, deleted)
		assert.False(t, deletedMissing)
		assert.Equal(t, []string{other.ID}, ids(queryAll(t, store)))
	})

	t.Run("clear", func(t *testing.T) {
		// arrange
		store := newStore(t)
		_, err := store.SaveEvent(ctx, fixtures.GivenAuthor(t).TextNote(t, 1, "x"))
		require.NoError(t, err)

		// act
		err = store.Clear(ctx)

		// assert
		require.NoError(t, err)
		assert.Empty(t, queryAll(t, store))
	})

	t.Run("replace_keeps_one_event_per_slot", func(t *testing.T) {
		// arrange
		store := newStore(t)
		replacer, ok := store.(eventstore.Replacer)
		if !ok {
			t.Skip("store does not implement eventstore.Replacer")
		}

		alice := fixtures.GivenAuthor(t)
		a := alice.Metadata(t, 1000, "a")
		b := alice.Metadata(t, 2000, "b")
		x1 := alice.Addressable(t, 30001, 1000, "x", "one")
		x2 := alice.Addressable(t, 30001, 2000, "x", "two")
		y := alice.Addressable(t, 30001, 1500, "y", "other slot")

		// act
		for _, e := range []nostr.Event{a, b, x1, x2, y} {
			key, err := eventstore.ReplaceKeyOf(e)
			require.NoError(t, err)
			require.NoError(t, replacer.ReplaceEvent(ctx, e, key))
		}

		// assert
		assert.Equal(t, []string{b.ID}, ids(query(t, store, nostr.Filter{Kinds: []int{0}, Authors: []string{alice.PubKey}})))
		assert.ElementsMatch(t, []string{x2.ID, y.ID}, ids(query(t, store, nostr.Filter{Kinds: []int{30001}})))
	})

	t.Run("concurrent_replace_leaves_exactly_one_event", func(t *testing.T) {
		// arrange
		store := newStore(t)
		replacer, ok := store.(eventstore.Replacer)
		if !ok {
			t.Skip("store does not implement eventstore.Replacer")
		}

		alice := fixtures.GivenAuthor(t)
		events := make([]nostr.Event, 0, 8)
		for i := range 8 {
			events = append(events, alice.Metadata(t, int64(1000+i), "name"))
		}

		// act
		var wg sync.WaitGroup
		for _, e := range events {
			wg.Add(1)
			go func(e nostr.Event) {
				defer wg.Done()
				key, _ := eventstore.ReplaceKeyOf(e)
				assert.NoError(t, replacer.ReplaceEvent(ctx, e, key))
			}(e)
		}
		wg.Wait()

		// assert
		assert.Len(t, query(t, store, nostr.Filter{Kinds: []int{0}, Authors: []string{alice.PubKey}}), 1)
	})
}

func query(t *testing.T, store eventstore.Store, filter nostr.Filter) []nostr.Event {
	found, err := store.QueryEvents(context.Background(), nostr.Filters{filter})
	require.NoError(t, err)

	return found
}

func queryAll(t *testing.T, store eventstore.Store) []nostr.Event {
	return query(t, store, nostr.Filter{})
}

func ids(events []nostr.Event) []string {
	result := make([]string, 0, len(events))
	for _, e := range events {
		result = append(result, e.ID)
	}

	return result
}
