// Package helper provides test doubles and small utilities shared by the relay and store tests.
//
// Observability spies:
//
//	LogHandlerSpy: slog.Handler capturing records, with a fluent matcher
//	MetricsCollectorSpy: captures durations, counters and values, plain and contextual
//	TracingCollectorSpy: captures started and finished spans
//
// Utilities:
//
//	GivenUniqueID, Eventually, ContextWithTimeout, FakeClock
//
// This is testing infrastructure - not production code.
package helper
