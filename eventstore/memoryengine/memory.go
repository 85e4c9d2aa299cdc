package memoryengine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

const (
	logMsgEventSaved     = "event saved"
	logMsgEventReplaced  = "event replaced"
	logMsgQueryCompleted = "query completed"
	logMsgStoreCleared   = "store cleared"
	logAttrEventID       = "event_id"
	logAttrEventCount    = "event_count"
	logAttrReplaceKey    = "replace_key"
	logAttrRemovedCount  = "removed_count"
	metricQueryDuration  = "eventstore_query_duration_seconds"
	metricWriteDuration  = "eventstore_write_duration_seconds"
	labelOperation       = "operation"
	labelEngine          = "engine"
	engineName           = "memory"
	operationQuery       = "query"
	operationSave        = "save"
	operationReplace     = "replace"
	operationDelete      = "delete"
)

// EventStore is an in-memory eventstore.Store that also implements eventstore.Replacer.
type EventStore struct {
	mu               sync.RWMutex
	events           map[string]nostr.Event
	logger           eventstore.Logger
	metricsCollector eventstore.MetricsCollector
}

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithLogger sets the logger for the EventStore. Writes are logged at debug level.
func WithLogger(logger eventstore.Logger) Option {
	return func(es *EventStore) error {
		es.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the EventStore.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(es *EventStore) error {
		es.metricsCollector = collector
		return nil
	}
}

// NewEventStore creates an empty in-memory EventStore.
func NewEventStore(options ...Option) (*EventStore, error) {
	es := &EventStore{events: make(map[string]nostr.Event)}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// SaveEvent stores the event unless an event with the same id exists.
func (es *EventStore) SaveEvent(ctx context.Context, event nostr.Event) (bool, error) {
	start := time.Now()
	defer es.recordDuration(ctx, metricWriteDuration, operationSave, start)

	es.mu.Lock()
	defer es.mu.Unlock()

	if _, exists := es.events[event.ID]; exists {
		return false, nil
	}

	es.events[event.ID] = event
	es.logDebug(logMsgEventSaved, logAttrEventID, event.ID)

	return true, nil
}

// ReplaceEvent removes every event occupying the slot of key and stores event, in one critical section.
func (es *EventStore) ReplaceEvent(ctx context.Context, event nostr.Event, key eventstore.ReplaceKey) error {
	start := time.Now()
	defer es.recordDuration(ctx, metricWriteDuration, operationReplace, start)

	es.mu.Lock()
	defer es.mu.Unlock()

	removed := es.deleteWhere(key.Covers)
	es.events[event.ID] = event
	es.logDebug(logMsgEventReplaced, logAttrEventID, event.ID, logAttrReplaceKey, key.String(), logAttrRemovedCount, removed)

	return nil
}

// QueryEvents returns the union of all filter results, newest first.
func (es *EventStore) QueryEvents(ctx context.Context, filters nostr.Filters) ([]nostr.Event, error) {
	start := time.Now()
	defer es.recordDuration(ctx, metricQueryDuration, operationQuery, start)

	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	seen := make(map[string]struct{})
	result := make([]nostr.Event, 0)

	for _, filter := range filters {
		for _, event := range es.queryOne(filter) {
			if _, dup := seen[event.ID]; dup {
				continue
			}

			seen[event.ID] = struct{}{}
			result = append(result, event)
		}
	}

	slices.SortFunc(result, newestFirst)
	es.logDebug(logMsgQueryCompleted, logAttrEventCount, len(result))

	return result, nil
}

// DeleteEvent removes the event with the given id.
func (es *EventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	defer es.recordDuration(ctx, metricWriteDuration, operationDelete, start)

	es.mu.Lock()
	defer es.mu.Unlock()

	if _, exists := es.events[id]; !exists {
		return false, nil
	}

	delete(es.events, id)

	return true, nil
}

// DeleteEventsByPubkeyAndKind removes every event of the author with the given kind.
func (es *EventStore) DeleteEventsByPubkeyAndKind(ctx context.Context, pubKey string, kind int) (bool, error) {
	return es.deleteByKey(ctx, eventstore.ReplaceKey{PubKey: pubKey, Kind: kind})
}

// DeleteEventsByPubkeyKindAndDTag removes every event of the author with the given kind and d tag.
func (es *EventStore) DeleteEventsByPubkeyKindAndDTag(ctx context.Context, pubKey string, kind int, dTag string) (bool, error) {
	return es.deleteByKey(ctx, eventstore.ReplaceKey{PubKey: pubKey, Kind: kind, DTag: dTag, HasD: true})
}

// Clear removes all events.
func (es *EventStore) Clear(_ context.Context) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.events = make(map[string]nostr.Event)
	es.logDebug(logMsgStoreCleared)

	return nil
}

// Len returns the number of stored events.
func (es *EventStore) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()

	return len(es.events)
}

func (es *EventStore) deleteByKey(ctx context.Context, key eventstore.ReplaceKey) (bool, error) {
	start := time.Now()
	defer es.recordDuration(ctx, metricWriteDuration, operationDelete, start)

	es.mu.Lock()
	defer es.mu.Unlock()

	return es.deleteWhere(key.Covers) > 0, nil
}

// deleteWhere must be called with the write lock held.
func (es *EventStore) deleteWhere(match func(nostr.Event) bool) int {
	removed := 0

	for id, event := range es.events {
		if match(event) {
			delete(es.events, id)
			removed++
		}
	}

	return removed
}

// queryOne must be called with the read lock held.
func (es *EventStore) queryOne(filter nostr.Filter) []nostr.Event {
	matches := make([]nostr.Event, 0)

	for _, event := range es.events {
		if filter.Matches(event) {
			matches = append(matches, event)
		}
	}

	slices.SortFunc(matches, newestFirst)

	if filter.Limit != nil && len(matches) > *filter.Limit {
		matches = matches[:*filter.Limit]
	}

	return matches
}

func newestFirst(a, b nostr.Event) int {
	if a.CreatedAt != b.CreatedAt {
		if a.CreatedAt > b.CreatedAt {
			return -1
		}
		return 1
	}

	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

func (es *EventStore) logDebug(msg string, args ...any) {
	if es.logger != nil {
		es.logger.Debug(msg, args...)
	}
}

func (es *EventStore) recordDuration(ctx context.Context, metric, operation string, start time.Time) {
	eventstore.RecordDuration(ctx, es.metricsCollector, metric, time.Since(start), map[string]string{
		labelEngine:    engineName,
		labelOperation: operation,
	})
}
