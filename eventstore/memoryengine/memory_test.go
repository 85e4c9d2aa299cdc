package memoryengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/fixtures"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/helper"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/storetest"
)

func Test_MemoryEngine_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) eventstore.Store {
		es, err := memoryengine.NewEventStore()
		require.NoError(t, err)

		return es
	})
}

func Test_MemoryEngine_Implements_Replacer(t *testing.T) {
	es, err := memoryengine.NewEventStore()
	require.NoError(t, err)

	var store eventstore.Store = es
	_, ok := store.(eventstore.Replacer)

	assert.True(t, ok)
}

func Test_MemoryEngine_When_ContextIsCancelled_QueryFails(t *testing.T) {
	// arrange
	es, err := memoryengine.NewEventStore()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, err = es.QueryEvents(ctx, nostr.Filters{{}})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrQueryingEventsFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_MemoryEngine_Records_Observability(t *testing.T) {
	// arrange
	logger, logSpy := helper.NewLoggerSpy()
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	es, err := memoryengine.NewEventStore(memoryengine.WithLogger(logger), memoryengine.WithMetrics(metricsSpy))
	require.NoError(t, err)
	event := fixtures.GivenAuthor(t).TextNote(t, 1, "x")

	// act
	_, err = es.SaveEvent(context.Background(), event)
	require.NoError(t, err)
	_, err = es.QueryEvents(context.Background(), nostr.Filters{{}})
	require.NoError(t, err)

	// assert
	assert.True(t, logSpy.HasDebugLogWithMessage("event saved").WithAttrValue("event_id", event.ID).Assert())
	assert.True(t, metricsSpy.HasDurationRecord("eventstore_write_duration_seconds"))
	assert.True(t, metricsSpy.HasDurationRecord("eventstore_query_duration_seconds"))
	assert.Equal(t, 1, es.Len())
}
