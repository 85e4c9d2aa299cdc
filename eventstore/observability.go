package eventstore

import (
	"context"
	"time"
)

// Logger is the structured logger used by stores and the relay core. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector collects durations, counters and gauge values.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods for trace correlation.
// It is optional: callers use the context-aware methods when available and fall back to MetricsCollector.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector starts and finishes spans. It keeps the core free of any tracing backend.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// ContextualLogger is a Logger variant that correlates log records with the active trace.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// RecordDuration records through the contextual method when the collector supports it.
func RecordDuration(ctx context.Context, mc MetricsCollector, metric string, d time.Duration, labels map[string]string) {
	if mc == nil {
		return
	}

	if cmc, ok := mc.(ContextualMetricsCollector); ok {
		cmc.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	mc.RecordDuration(metric, d, labels)
}

// IncrementCounter increments through the contextual method when the collector supports it.
func IncrementCounter(ctx context.Context, mc MetricsCollector, metric string, labels map[string]string) {
	if mc == nil {
		return
	}

	if cmc, ok := mc.(ContextualMetricsCollector); ok {
		cmc.IncrementCounterContext(ctx, metric, labels)
		return
	}

	mc.IncrementCounter(metric, labels)
}

// RecordValue records through the contextual method when the collector supports it.
func RecordValue(ctx context.Context, mc MetricsCollector, metric string, value float64, labels map[string]string) {
	if mc == nil {
		return
	}

	if cmc, ok := mc.(ContextualMetricsCollector); ok {
		cmc.RecordValueContext(ctx, metric, value, labels)
		return
	}

	mc.RecordValue(metric, value, labels)
}
