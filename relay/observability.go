package relay

import (
	"context"
	"math"
	"time"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
)

const (
	metricMessagesTotal       = "relay_messages_total"
	metricMessageDuration     = "relay_message_duration_seconds"
	metricEventsTotal         = "relay_events_total"
	metricSubscriptionsActive = "relay_subscriptions_active"
	metricBroadcastsTotal     = "relay_broadcasts_total"
	metricConnectionsActive   = "relay_connections_active"
	metricNoticesTotal        = "relay_notices_total"
	labelType                 = "type"
	labelStatus               = "status"
	labelClass                = "class"
	labelReason               = "reason"
	statusSuccess             = "success"
	statusError               = "error"
	statusInvalid             = "invalid"
	statusDuplicate           = "duplicate"
	spanNamePrefix            = "relay."
	spanAttrClientID          = "client_id"
	spanAttrMessageType       = "message_type"
)

const (
	logMsgClientConnected     = "client connected"
	logMsgClientDisconnected  = "client disconnected"
	logMsgMessageHandled      = "message handled"
	logMsgNoticeSent          = "notice sent"
	logMsgEventAccepted       = "event accepted"
	logMsgEventRejected       = "event rejected"
	logMsgStorageFailed       = "storage operation failed"
	logMsgSubscriptionCreated = "subscription created"
	logMsgSubscriptionClosed  = "subscription closed"
	logMsgBacklogSent         = "backlog sent"
	logMsgBacklogFailed       = "backlog query failed"
	logMsgStaleBacklogDropped = "dropped backlog of removed subscription"
	logMsgSendFailed          = "sending message failed"
	logMsgPanicRecovered      = "recovered from panic while handling message"
	logMsgTransportStarted    = "transport started"
	logMsgTransportStopped    = "transport stopped"
	logMsgTransportFailed     = "transport failed to start"
	logAttrClientID           = "client_id"
	logAttrSubscriptionID     = "subscription_id"
	logAttrEventID            = "event_id"
	logAttrKind               = "kind"
	logAttrClass              = "class"
	logAttrMessageType        = "message_type"
	logAttrNotice             = "notice"
	logAttrError              = "error"
	logAttrPanic              = "panic"
	logAttrFilterCount        = "filter_count"
	logAttrBacklogCount       = "backlog_count"
	logAttrMatchCount         = "match_count"
	logAttrRemovedCount       = "removed_count"
	logAttrDurationMS         = "duration_ms"
)

// observer reports on the settings it was created from, every method is a no-op for unset collaborators.
type observer struct {
	settings
}

func (o observer) debug(ctx context.Context, msg string, args ...any) {
	switch {
	case o.contextualLogger != nil:
		o.contextualLogger.DebugContext(ctx, msg, args...)
	case o.logger != nil:
		o.logger.Debug(msg, args...)
	}
}

func (o observer) info(ctx context.Context, msg string, args ...any) {
	switch {
	case o.contextualLogger != nil:
		o.contextualLogger.InfoContext(ctx, msg, args...)
	case o.logger != nil:
		o.logger.Info(msg, args...)
	}
}

func (o observer) warn(ctx context.Context, msg string, args ...any) {
	switch {
	case o.contextualLogger != nil:
		o.contextualLogger.WarnContext(ctx, msg, args...)
	case o.logger != nil:
		o.logger.Warn(msg, args...)
	}
}

func (o observer) error(ctx context.Context, msg string, args ...any) {
	switch {
	case o.contextualLogger != nil:
		o.contextualLogger.ErrorContext(ctx, msg, args...)
	case o.logger != nil:
		o.logger.Error(msg, args...)
	}
}

func (o observer) count(ctx context.Context, metric string, labels map[string]string) {
	eventstore.IncrementCounter(ctx, o.metricsCollector, metric, labels)
}

func (o observer) duration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	eventstore.RecordDuration(ctx, o.metricsCollector, metric, d, labels)
}

func (o observer) value(ctx context.Context, metric string, v float64, labels map[string]string) {
	eventstore.RecordValue(ctx, o.metricsCollector, metric, v, labels)
}

func (o observer) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	if o.tracingCollector == nil {
		return ctx, nil
	}

	return o.tracingCollector.StartSpan(ctx, spanNamePrefix+name, attrs)
}

func (o observer) finishSpan(span eventstore.SpanContext, status string) {
	if o.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(status)
	o.tracingCollector.FinishSpan(span, status, nil)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
