package relay_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/relay"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/fixtures"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/helper"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/relaytest"
)

type policyFixture struct {
	policy   *relay.LifecyclePolicy
	registry *relay.Registry
	store    eventstore.Store
}

func givenMemoryStore(t *testing.T) *memoryengine.EventStore {
	store, err := memoryengine.NewEventStore()
	require.NoError(t, err)

	return store
}

func givenValidator(t *testing.T) *nostr.SchnorrValidator {
	validator, err := nostr.NewSchnorrValidator(nostr.DefaultVerifiedCacheSize)
	require.NoError(t, err)

	return validator
}

func givenPolicy(t *testing.T, store eventstore.Store, options ...relay.Option) policyFixture {
	registry := givenRegistry(t)
	policy, err := relay.NewLifecyclePolicy(givenValidator(t), store, registry, options...)
	require.NoError(t, err)

	return policyFixture{policy: policy, registry: registry, store: store}
}

func queryAll(t *testing.T, store eventstore.Store, filter nostr.Filter) []nostr.Event {
	events, err := store.QueryEvents(context.Background(), nostr.Filters{filter})
	require.NoError(t, err)

	return events
}

// storeVariants runs a test against a store with atomic replace and one with the delete-then-save fallback.
func storeVariants() map[string]func(t *testing.T) eventstore.Store {
	return map[string]func(t *testing.T) eventstore.Store{
		"replacer": func(t *testing.T) eventstore.Store {
			return givenMemoryStore(t)
		},
		"delete_then_save": func(t *testing.T) eventstore.Store {
			return relaytest.WithoutReplacer{Store: givenMemoryStore(t)}
		},
	}
}

func Test_HandleEvent_Regular_Is_Stored_And_Matched(t *testing.T) {
	// arrange
	f := givenPolicy(t, givenMemoryStore(t))
	f.registry.CreateSubscription("client-b", "s1", nostr.Filters{{Kinds: []int{1}}})
	event := fixtures.GivenAuthor(t).TextNote(t, 1000, "hello")

	// act
	result, err := f.policy.HandleEvent(context.Background(), event)

	// assert
	require.NoError(t, err)
	assert.Equal(t, nostr.ClassRegular, result.Class)
	assert.False(t, result.Duplicate)
	assert.Equal(t, []string{"s1"}, subscriptionIDs(result.Matches["client-b"]))
	assert.Len(t, queryAll(t, f.store, nostr.Filter{IDs: []string{event.ID}}), 1)
}

func Test_HandleEvent_When_RegularEventIsRepublished_ReportsDuplicate(t *testing.T) {
	// arrange
	f := givenPolicy(t, givenMemoryStore(t))
	f.registry.CreateSubscription("client-b", "s1", nostr.Filters{{}})
	event := fixtures.GivenAuthor(t).TextNote(t, 1000, "hello")
	_, err := f.policy.HandleEvent(context.Background(), event)
	require.NoError(t, err)

	// act
	result, err := f.policy.HandleEvent(context.Background(), event)

	// assert
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Empty(t, result.Matches)
}

func Test_HandleEvent_When_ReplaceableOrAddressableIsRepublished_ReportsDuplicate(t *testing.T) {
	events := map[string]func(t *testing.T, a fixtures.Author) nostr.Event{
		"replaceable": func(t *testing.T, a fixtures.Author) nostr.Event { return a.Metadata(t, 1000, "alice") },
		"addressable": func(t *testing.T, a fixtures.Author) nostr.Event { return a.Addressable(t, 30023, 1000, "post", "x") },
	}

	for storeName, newStore := range storeVariants() {
		for eventName, newEvent := range events {
			t.Run(storeName+"_"+eventName, func(t *testing.T) {
				// arrange
				f := givenPolicy(t, newStore(t))
				f.registry.CreateSubscription("client-b", "s1", nostr.Filters{{}})
				event := newEvent(t, fixtures.GivenAuthor(t))
				_, err := f.policy.HandleEvent(context.Background(), event)
				require.NoError(t, err)

				// act
				result, err := f.policy.HandleEvent(context.Background(), event)

				// assert
				require.NoError(t, err)
				assert.True(t, result.Duplicate)
				assert.Empty(t, result.Matches)
				assert.Len(t, queryAll(t, f.store, nostr.Filter{IDs: []string{event.ID}}), 1)
			})
		}
	}
}

func Test_HandleEvent_Replaceable_Overwrites_Prior(t *testing.T) {
	for name, newStore := range storeVariants() {
		t.Run(name, func(t *testing.T) {
			// arrange
			f := givenPolicy(t, newStore(t))
			alice := fixtures.GivenAuthor(t)
			a := alice.Metadata(t, 1000, "alice")
			b := alice.Metadata(t, 2000, "alice v2")

			// act
			_, errA := f.policy.HandleEvent(context.Background(), a)
			_, errB := f.policy.HandleEvent(context.Background(), b)

			// assert
			require.NoError(t, errA)
			require.NoError(t, errB)
			found := queryAll(t, f.store, nostr.Filter{Kinds: []int{0}, Authors: []string{alice.PubKey}})
			require.Len(t, found, 1)
			assert.Equal(t, b.ID, found[0].ID)
		})
	}
}

func Test_HandleEvent_Replaceable_Keeps_Other_Authors_And_Kinds(t *testing.T) {
	// arrange
	f := givenPolicy(t, givenMemoryStore(t))
	alice := fixtures.GivenAuthor(t)
	bob := fixtures.GivenAuthor(t)
	events := []nostr.Event{
		alice.Metadata(t, 1000, "alice"),
		bob.Metadata(t, 1000, "bob"),
		alice.Event(t, 3, 1000, ""),
		alice.Event(t, 10002, 1000, ""),
		alice.Metadata(t, 2000, "alice v2"),
	}

	// act
	for _, e := range events {
		_, err := f.policy.HandleEvent(context.Background(), e)
		require.NoError(t, err)
	}

	// assert
	assert.Len(t, queryAll(t, f.store, nostr.Filter{}), 4)
}

func Test_HandleEvent_Ephemeral_Is_Delivered_But_Not_Stored(t *testing.T) {
	// arrange
	f := givenPolicy(t, givenMemoryStore(t))
	f.registry.CreateSubscription("client-b", "live", nostr.Filters{{Kinds: []int{20001}}})
	event := fixtures.GivenAuthor(t).Event(t, 20001, 1000, "typing")

	// act
	result, err := f.policy.HandleEvent(context.Background(), event)

	// assert
	require.NoError(t, err)
	assert.Equal(t, nostr.ClassEphemeral, result.Class)
	assert.Len(t, result.Matches["client-b"], 1)
	assert.Empty(t, queryAll(t, f.store, nostr.Filter{IDs: []string{event.ID}}))
}

func Test_HandleEvent_Addressable_Overwrites_Per_DTag(t *testing.T) {
	for name, newStore := range storeVariants() {
		t.Run(name, func(t *testing.T) {
			// arrange
			f := givenPolicy(t, newStore(t))
			alice := fixtures.GivenAuthor(t)
			events := []nostr.Event{
				alice.Addressable(t, 30001, 1000, "x", "v1"),
				alice.Addressable(t, 30001, 1000, "y", "other"),
				alice.Addressable(t, 30001, 2000, "x", "v2"),
			}

			// act
			for _, e := range events {
				_, err := f.policy.HandleEvent(context.Background(), e)
				require.NoError(t, err)
			}

			// assert
			found := queryAll(t, f.store, nostr.Filter{Kinds: []int{30001}, Authors: []string{alice.PubKey}})
			assert.ElementsMatch(t, []string{events[1].ID, events[2].ID}, eventIDs(found))
		})
	}
}

func Test_HandleEvent_When_AddressableHasNoDTag_FailsWithoutTouchingStorage(t *testing.T) {
	// arrange
	store := &relaytest.FailingStore{Store: givenMemoryStore(t)}
	f := givenPolicy(t, store)
	f.registry.CreateSubscription("client-b", "s1", nostr.Filters{{}})
	event := fixtures.GivenAuthor(t).Event(t, 30001, 1000, "no d")

	// act
	result, err := f.policy.HandleEvent(context.Background(), event)

	// assert
	assert.ErrorIs(t, err, relay.ErrStorageFailed)
	assert.ErrorIs(t, err, eventstore.ErrMissingDTag)
	assert.Empty(t, result.Matches)
	assert.Equal(t, int64(0), store.Calls.Load())
}

func Test_HandleEvent_When_EventIsInvalid(t *testing.T) {
	// arrange
	store := &relaytest.FailingStore{Store: givenMemoryStore(t)}
	f := givenPolicy(t, store)
	f.registry.CreateSubscription("client-b", "s1", nostr.Filters{{}})
	event := fixtures.GivenAuthor(t).TextNote(t, 1000, "hello")
	event.Content = "tampered"

	// act
	result, err := f.policy.HandleEvent(context.Background(), event)

	// assert
	assert.ErrorIs(t, err, relay.ErrEventValidationFailed)
	assert.Empty(t, result.Matches)
	assert.Equal(t, int64(0), store.Calls.Load())
}

func Test_HandleEvent_When_StorageFails_DoesNotMatch(t *testing.T) {
	tests := []struct {
		name  string
		store *relaytest.FailingStore
		event func(t *testing.T, a fixtures.Author) nostr.Event
	}{
		{
			name:  "regular_save",
			store: &relaytest.FailingStore{FailSave: true},
			event: func(t *testing.T, a fixtures.Author) nostr.Event { return a.TextNote(t, 1, "x") },
		},
		{
			name:  "replaceable_delete",
			store: &relaytest.FailingStore{FailDelete: true},
			event: func(t *testing.T, a fixtures.Author) nostr.Event { return a.Metadata(t, 1, "x") },
		},
		{
			name:  "addressable_save",
			store: &relaytest.FailingStore{FailSave: true},
			event: func(t *testing.T, a fixtures.Author) nostr.Event { return a.Addressable(t, 30000, 1, "d", "x") },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			tc.store.Store = givenMemoryStore(t)
			metricsSpy := helper.NewMetricsCollectorSpy(true)
			f := givenPolicy(t, tc.store, relay.WithMetrics(metricsSpy))
			f.registry.CreateSubscription("client-b", "s1", nostr.Filters{{}})

			// act
			result, err := f.policy.HandleEvent(context.Background(), tc.event(t, fixtures.GivenAuthor(t)))

			// assert
			assert.ErrorIs(t, err, relay.ErrStorageFailed)
			assert.ErrorIs(t, err, relaytest.ErrInjected)
			assert.Empty(t, result.Matches)
			assert.Equal(t, 1, metricsSpy.CountCounterRecords("relay_events_total", map[string]string{"status": "error"}))
		})
	}
}

func Test_HandleEvent_When_ReplaceableIsPublishedConcurrently_KeepsOneRow(t *testing.T) {
	// arrange
	f := givenPolicy(t, givenMemoryStore(t))
	alice := fixtures.GivenAuthor(t)
	events := make([]nostr.Event, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, alice.Metadata(t, int64(1000+i), "alice"))
	}
	var wg sync.WaitGroup

	// act
	for _, e := range events {
		wg.Add(1)
		go func(e nostr.Event) {
			defer wg.Done()
			_, err := f.policy.HandleEvent(context.Background(), e)
			assert.NoError(t, err)
		}(e)
	}
	wg.Wait()

	// assert
	assert.Len(t, queryAll(t, f.store, nostr.Filter{Kinds: []int{0}, Authors: []string{alice.PubKey}}), 1)
}

func Test_NewLifecyclePolicy_When_CollaboratorIsNil(t *testing.T) {
	registry := givenRegistry(t)
	store := givenMemoryStore(t)
	validator := givenValidator(t)

	_, err := relay.NewLifecyclePolicy(nil, store, registry)
	assert.ErrorIs(t, err, relay.ErrNilValidator)

	_, err = relay.NewLifecyclePolicy(validator, nil, registry)
	assert.ErrorIs(t, err, relay.ErrNilStore)

	_, err = relay.NewLifecyclePolicy(validator, store, nil)
	assert.ErrorIs(t, err, relay.ErrNilRegistry)
}

func eventIDs(events []nostr.Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}

	return ids
}
