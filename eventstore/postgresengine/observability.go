package postgresengine

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
)

const (
	metricQueryDuration = "eventstore_query_duration_seconds"
	metricWriteDuration = "eventstore_write_duration_seconds"
	metricErrors        = "eventstore_errors_total"
	spanNamePrefix      = "eventstore."
	spanAttrOperation   = "operation"
	spanAttrErrorType   = "error_type"
	spanAttrDurationMS  = "duration_ms"
	labelStatus         = "status"
	labelEngine         = "engine"
	engineName          = "postgres"
	statusSuccess       = "success"
	statusError         = "error"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (es *EventStore) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// operationObserver bundles logging, metrics and tracing of one store operation.
type operationObserver struct {
	es        *EventStore
	ctx       context.Context
	operation string
	start     time.Time
	span      eventstore.SpanContext
}

// startOperation opens a span (if tracing is configured) and starts the operation clock.
// spanAttrs are key/value pairs added to the span.
func (es *EventStore) startOperation(ctx context.Context, operation string, spanAttrs ...string) (*operationObserver, context.Context) {
	observer := &operationObserver{
		es:        es,
		ctx:       ctx,
		operation: operation,
		start:     time.Now(),
	}

	if es.tracingCollector != nil {
		attrs := map[string]string{spanAttrOperation: operation}
		for i := 0; i+1 < len(spanAttrs); i += 2 {
			attrs[spanAttrs[i]] = spanAttrs[i+1]
		}

		ctx, observer.span = es.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, attrs)
		observer.ctx = ctx
	}

	return observer, ctx
}

func (o *operationObserver) finishSuccess(msg string, args ...any) {
	duration := time.Since(o.start)

	o.logInfo(msg, append(args, logAttrDurationMS, toMilliseconds(duration))...)
	o.recordDuration(duration, statusSuccess)
	o.finishSpan(statusSuccess, duration, nil)
}

func (o *operationObserver) finishError(errorType string, err error, args ...any) {
	duration := time.Since(o.start)

	o.logError(errorLogMessage(errorType), append([]any{logAttrError, err.Error()}, args...)...)
	o.recordDuration(duration, statusError)
	eventstore.IncrementCounter(o.ctx, o.es.metricsCollector, metricErrors, map[string]string{
		labelEngine:       engineName,
		spanAttrOperation: o.operation,
		spanAttrErrorType: errorType,
	})
	o.finishSpan(statusError, duration, map[string]string{spanAttrErrorType: errorType})
}

func (o *operationObserver) recordDuration(duration time.Duration, status string) {
	metric := metricWriteDuration
	if o.operation == operationQuery {
		metric = metricQueryDuration
	}

	eventstore.RecordDuration(o.ctx, o.es.metricsCollector, metric, duration, map[string]string{
		labelEngine:       engineName,
		spanAttrOperation: o.operation,
		labelStatus:       status,
	})
}

func (o *operationObserver) finishSpan(status string, duration time.Duration, attrs map[string]string) {
	if o.es.tracingCollector == nil || o.span == nil {
		return
	}

	o.span.SetStatus(status)
	o.span.AddAttribute(spanAttrDurationMS, strconv.FormatFloat(toMilliseconds(duration), 'f', 2, 64))

	o.es.tracingCollector.FinishSpan(o.span, status, attrs)
}

func (o *operationObserver) logInfo(msg string, args ...any) {
	switch {
	case o.es.contextualLogger != nil:
		o.es.contextualLogger.InfoContext(o.ctx, logMsgOperation+msg, args...)
	case o.es.logger != nil:
		o.es.logger.Info(logMsgOperation+msg, args...)
	}
}

func (o *operationObserver) logError(msg string, args ...any) {
	switch {
	case o.es.contextualLogger != nil:
		o.es.contextualLogger.ErrorContext(o.ctx, msg, args...)
	case o.es.logger != nil:
		o.es.logger.Error(msg, args...)
	}
}

func errorLogMessage(errorType string) string {
	switch errorType {
	case errorTypeBuildQuery:
		return logMsgBuildQueryFailed
	case errorTypeDatabaseQuery:
		return logMsgDBQueryFailed
	case errorTypeDatabaseExec:
		return logMsgDBExecFailed
	case errorTypeRowScan:
		return logMsgScanRowFailed
	case errorTypeDecodeTags:
		return logMsgDecodeTagsFailed
	case errorTypeRowsAffected:
		return logMsgRowsAffectedFailed
	default:
		return logMsgOperation + errorType
	}
}
