package relay_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/relay"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/fixtures"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/helper"
)

func givenRegistry(t *testing.T, options ...relay.Option) *relay.Registry {
	registry, err := relay.NewRegistry(options...)
	require.NoError(t, err)

	return registry
}

func Test_CreateSubscription_Sets_Fields_From_Clock(t *testing.T) {
	// arrange
	clock := helper.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	registry := givenRegistry(t, relay.WithClock(clock.Now))
	filters := nostr.Filters{{Kinds: []int{1}}}

	// act
	sub := registry.CreateSubscription("client-a", "sub1", filters)

	// assert
	assert.Equal(t, "client-a", sub.ClientID)
	assert.Equal(t, "sub1", sub.ID)
	assert.Equal(t, filters, sub.Filters)
	assert.Equal(t, clock.Now(), sub.CreatedAt)
	assert.Equal(t, 1, registry.Count())
}

func Test_CreateSubscription_When_IDIsReused_ReplacesFilters(t *testing.T) {
	// arrange
	clock := helper.NewFakeClock(time.Unix(1000, 0))
	registry := givenRegistry(t, relay.WithClock(clock.Now))
	first := registry.CreateSubscription("client-a", "sub1", nostr.Filters{{Kinds: []int{1}}})
	clock.Advance(time.Minute)

	// act
	second := registry.CreateSubscription("client-a", "sub1", nostr.Filters{{Authors: []string{"z"}}})

	// assert
	got, found := registry.GetSubscription("client-a", "sub1")
	require.True(t, found)
	assert.Same(t, second, got)
	assert.Equal(t, nostr.Filters{{Authors: []string{"z"}}}, got.Filters)
	assert.True(t, got.CreatedAt.After(first.CreatedAt))
	assert.Equal(t, 1, registry.Count())
	assert.False(t, registry.IsLive(first))
	assert.True(t, registry.IsLive(second))
}

func Test_CreateSubscription_Same_ID_For_Different_Clients_Coexist(t *testing.T) {
	// arrange
	registry := givenRegistry(t)

	// act
	registry.CreateSubscription("client-a", "sub1", nostr.Filters{{}})
	registry.CreateSubscription("client-b", "sub1", nostr.Filters{{}})

	// assert
	assert.Equal(t, 2, registry.Count())
	assert.Len(t, registry.GetClientSubscriptions("client-a"), 1)
	assert.Len(t, registry.GetClientSubscriptions("client-b"), 1)
}

func Test_RemoveSubscription(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	registry.CreateSubscription("client-a", "sub1", nostr.Filters{{}})

	// act
	removed := registry.RemoveSubscription("client-a", "sub1")
	removedAgain := registry.RemoveSubscription("client-a", "sub1")
	removedUnknown := registry.RemoveSubscription("client-x", "nope")

	// assert
	assert.True(t, removed)
	assert.False(t, removedAgain)
	assert.False(t, removedUnknown)
	assert.Equal(t, 0, registry.Count())
	_, found := registry.GetSubscription("client-a", "sub1")
	assert.False(t, found)
}

func Test_RemoveAllSubscriptions_Only_Affects_That_Client(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	registry.CreateSubscription("client-a", "sub1", nostr.Filters{{}})
	registry.CreateSubscription("client-a", "sub2", nostr.Filters{{}})
	registry.CreateSubscription("client-b", "sub1", nostr.Filters{{}})

	// act
	removed := registry.RemoveAllSubscriptions("client-a")

	// assert
	assert.Equal(t, 2, removed)
	assert.Empty(t, registry.GetClientSubscriptions("client-a"))
	assert.Len(t, registry.GetAllSubscriptions(), 1)
	assert.Equal(t, 0, registry.RemoveAllSubscriptions("client-a"))
}

func Test_RemoveSubscriptionByID_Removes_Across_Clients(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	registry.CreateSubscription("client-a", "feed", nostr.Filters{{}})
	registry.CreateSubscription("client-b", "feed", nostr.Filters{{}})
	registry.CreateSubscription("client-b", "other", nostr.Filters{{}})

	// act
	removed := registry.RemoveSubscriptionByID("feed")

	// assert
	assert.Equal(t, 2, removed)
	all := registry.GetAllSubscriptions()
	require.Len(t, all, 1)
	assert.Equal(t, "other", all[0].ID)
}

func Test_GetAllSubscriptions_Is_Ordered_By_Client_And_ID(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	registry.CreateSubscription("client-b", "s2", nostr.Filters{{}})
	registry.CreateSubscription("client-a", "s9", nostr.Filters{{}})
	registry.CreateSubscription("client-b", "s1", nostr.Filters{{}})

	// act
	all := registry.GetAllSubscriptions()

	// assert
	keys := make([]string, 0, len(all))
	for _, sub := range all {
		keys = append(keys, sub.ClientID+"/"+sub.ID)
	}
	assert.Equal(t, []string{"client-a/s9", "client-b/s1", "client-b/s2"}, keys)
}

func Test_FindMatchingSubscriptions_Groups_By_Client(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	registry.CreateSubscription("client-a", "notes", nostr.Filters{{Kinds: []int{1}}})
	registry.CreateSubscription("client-a", "everything", nostr.Filters{{}})
	registry.CreateSubscription("client-b", "notes", nostr.Filters{{Kinds: []int{1}}})
	registry.CreateSubscription("client-c", "metadata", nostr.Filters{{Kinds: []int{0}}})
	event := fixtures.UnsignedEvent(1, "abc", 100)

	// act
	matches := registry.FindMatchingSubscriptions(event)

	// assert
	require.Len(t, matches, 2)
	assert.ElementsMatch(t, []string{"notes", "everything"}, subscriptionIDs(matches["client-a"]))
	assert.ElementsMatch(t, []string{"notes"}, subscriptionIDs(matches["client-b"]))
	assert.NotContains(t, matches, "client-c")
}

func Test_FindMatchingSubscriptions_OR_Across_Filters(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	registry.CreateSubscription("client-a", "s", nostr.Filters{{Kinds: []int{2}}, {Authors: []string{"abc"}}})

	// act
	byAuthor := registry.FindMatchingSubscriptions(fixtures.UnsignedEvent(1, "abc", 1))
	byNeither := registry.FindMatchingSubscriptions(fixtures.UnsignedEvent(1, "xyz", 1))

	// assert
	assert.Len(t, byAuthor["client-a"], 1)
	assert.Empty(t, byNeither)
}

func Test_FindMatchingSubscriptions_When_FiltersAreEquivalent(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	registry.CreateSubscription("client-a", "s", nostr.Filters{{Kinds: []int{1, 7}, Authors: []string{"b", "a"}}})
	registry.CreateSubscription("client-b", "s", nostr.Filters{{Kinds: []int{7, 1, 1}, Authors: []string{"a", "b"}}})

	// act
	matches := registry.FindMatchingSubscriptions(fixtures.UnsignedEvent(7, "a", 1))
	misses := registry.FindMatchingSubscriptions(fixtures.UnsignedEvent(7, "c", 1))

	// assert
	assert.Len(t, matches, 2)
	assert.Empty(t, misses)
}

func Test_Registry_Records_Active_Subscriptions(t *testing.T) {
	// arrange
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	registry := givenRegistry(t, relay.WithMetrics(metricsSpy))

	// act
	registry.CreateSubscription("client-a", "s1", nostr.Filters{{}})
	registry.CreateSubscription("client-a", "s2", nostr.Filters{{}})
	registry.RemoveSubscription("client-a", "s1")

	// assert
	value, found := metricsSpy.LastValue("relay_subscriptions_active")
	require.True(t, found)
	assert.Equal(t, float64(1), value)
}

func Test_Registry_When_UsedConcurrently(t *testing.T) {
	// arrange
	registry := givenRegistry(t)
	event := fixtures.UnsignedEvent(1, "abc", 1)
	var wg sync.WaitGroup

	// act
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func(clientID string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				subID := fmt.Sprintf("s%d", i%5)
				registry.CreateSubscription(clientID, subID, nostr.Filters{{Kinds: []int{1}}})
				registry.FindMatchingSubscriptions(event)
				if i%3 == 0 {
					registry.RemoveSubscription(clientID, subID)
				}
			}
			registry.RemoveAllSubscriptions(clientID)
		}(fmt.Sprintf("client-%d", c))
	}
	wg.Wait()

	// assert
	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.GetAllSubscriptions())
}

func Test_NewRegistry_When_ClockIsNil(t *testing.T) {
	_, err := relay.NewRegistry(relay.WithClock(nil))

	assert.ErrorIs(t, err, relay.ErrNilClock)
}

func subscriptionIDs(subs []*relay.Subscription) []string {
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}

	return ids
}
