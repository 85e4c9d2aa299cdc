package postgresengine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/fixtures"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/helper"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/helper/postgreswrapper"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/storetest"
)

func uniqueTableName() string {
	return fmt.Sprintf("events_test_%d", time.Now().UnixNano())
}

func Test_PostgresEngine_Conformance(t *testing.T) {
	postgreswrapper.DSNOrSkip(t)

	storetest.Run(t, func(t *testing.T) eventstore.Store {
		return postgreswrapper.CreateWrapperWithTestConfig(t, uniqueTableName()).GetEventStore()
	})
}

func Test_PostgresEngine_Records_Observability(t *testing.T) {
	// arrange
	logger, logSpy := helper.NewLoggerSpy()
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, uniqueTableName(),
		postgresengine.WithLogger(logger),
		postgresengine.WithMetrics(metricsSpy),
		postgresengine.WithTracing(tracingSpy),
	)
	es := wrapper.GetEventStore()
	event := fixtures.GivenAuthor(t).TextNote(t, 1, "x")

	// act
	_, err := es.SaveEvent(context.Background(), event)
	require.NoError(t, err)
	_, err = es.QueryEvents(context.Background(), nostr.Filters{{}})
	require.NoError(t, err)

	// assert
	assert.True(t, logSpy.HasDebugLogWithMessage("executed sql for: save").WithDurationMS().Assert())
	assert.True(t, logSpy.HasInfoLogWithMessage("eventstore operation: event saved").WithAttrValue("event_id", event.ID).Assert())
	assert.True(t, metricsSpy.HasDurationRecord("eventstore_write_duration_seconds"))
	assert.True(t, metricsSpy.HasDurationRecord("eventstore_query_duration_seconds"))
	assert.True(t, tracingSpy.HasFinishedSpan("eventstore.save", "success"))
	assert.True(t, tracingSpy.HasFinishedSpan("eventstore.query", "success"))
}

func Test_PostgresEngine_When_TableIsMissing_QueryFails(t *testing.T) {
	// arrange
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, uniqueTableName())
	wrapper.Exec(t, "DROP TABLE IF EXISTS events_missing_table")
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	failing, err := rebuildWithTable(wrapper, "events_missing_table", postgresengine.WithMetrics(metricsSpy))
	require.NoError(t, err)

	// act
	_, err = failing.QueryEvents(context.Background(), nostr.Filters{{}})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrQueryingEventsFailed)
	assert.Equal(t, 1, metricsSpy.CountCounterRecords("eventstore_errors_total", map[string]string{"operation": "query"}))
}

func Test_PostgresEngine_Replace_Is_Atomic_Per_Slot(t *testing.T) {
	// arrange
	es := postgreswrapper.CreateWrapperWithTestConfig(t, uniqueTableName()).GetEventStore()
	alice := fixtures.GivenAuthor(t)
	older := alice.Addressable(t, 30023, 1000, "article", "v1")
	newer := alice.Addressable(t, 30023, 2000, "article", "v2")

	// act
	for _, e := range []nostr.Event{older, newer} {
		key, err := eventstore.ReplaceKeyOf(e)
		require.NoError(t, err)
		require.NoError(t, es.ReplaceEvent(context.Background(), e, key))
	}
	found, err := es.QueryEvents(context.Background(), nostr.Filters{{Authors: []string{alice.PubKey}, Kinds: []int{30023}}})

	// assert
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, newer.ID, found[0].ID)
	assert.Equal(t, newer.Tags, found[0].Tags)
}

func rebuildWithTable(
	wrapper postgreswrapper.Wrapper,
	table string,
	options ...postgresengine.Option,
) (*postgresengine.EventStore, error) {

	options = append([]postgresengine.Option{postgresengine.WithTableName(table)}, options...)

	switch w := wrapper.(type) {
	case *postgreswrapper.PGXPoolWrapper:
		return postgresengine.NewEventStoreFromPGXPool(w.Pool(), options...)
	case *postgreswrapper.SQLDBWrapper:
		return postgresengine.NewEventStoreFromSQLDB(w.DB(), options...)
	case *postgreswrapper.SQLXWrapper:
		return postgresengine.NewEventStoreFromSQLX(w.DB(), options...)
	default:
		return nil, errors.New("unknown wrapper")
	}
}

func Test_Constructors_When_ConnectionIsNil(t *testing.T) {
	_, err := postgresengine.NewEventStoreFromPGXPool(nil)
	assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)

	_, err = postgresengine.NewEventStoreFromPGXPoolAndReplica(nil, nil)
	assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)

	_, err = postgresengine.NewEventStoreFromSQLDB(nil)
	assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)

	_, err = postgresengine.NewEventStoreFromSQLX(nil)
	assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)
}
