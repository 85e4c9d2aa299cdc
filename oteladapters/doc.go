// Package oteladapters implements the eventstore observability interfaces on top of OpenTelemetry.
//
// The relay core, the storage engines and the websocket server only know the small interfaces of
// package eventstore. The adapters here map them onto the OpenTelemetry API:
//
//   - MetricsCollector: histograms for durations, counters, and gauges for current values
//   - TracingCollector: one span per operation, with relay statuses mapped to span status codes
//   - SlogBridgeLogger: a ContextualLogger that correlates records with the active span
//
// The adapters use the providers they are given, the binary wires them to the OpenTelemetry globals.
package oteladapters
