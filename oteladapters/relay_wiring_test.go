package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/relay"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/relaytest"
)

func Test_RelayEngine_When_WiredToAdapters_ExportsMessageSpanAndCounter(t *testing.T) {
	// arrange
	metrics, reader := givenMetricsCollector()
	tracing, exporter := givenTracingCollector()
	options := []relay.Option{relay.WithMetrics(metrics), relay.WithTracing(tracing)}

	store, err := memoryengine.NewEventStore()
	require.NoError(t, err)
	validator, err := nostr.NewSchnorrValidator(0)
	require.NoError(t, err)
	registry, err := relay.NewRegistry(options...)
	require.NoError(t, err)
	policy, err := relay.NewLifecyclePolicy(validator, store, registry, options...)
	require.NoError(t, err)
	transport := relaytest.NewTransport()
	engine, err := relay.NewEngine(transport, registry, policy, store, options...)
	require.NoError(t, err)
	transport.Connect("client-a")

	// act
	engine.HandleMessage(context.Background(), "client-a", []byte(`["REQ","s1",{"kinds":[1]}]`))

	// assert
	var messageSpan bool
	for _, span := range exporter.GetSpans() {
		if span.Name == "relay.message" {
			messageSpan = true
			assert.Equal(t, codes.Ok, span.Status.Code)
		}
	}
	assert.True(t, messageSpan, "relay.message span was not exported")

	sum, ok := findMetric(t, collect(t, reader), "relay_messages_total").Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum")
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}
