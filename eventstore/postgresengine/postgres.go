package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore/postgresengine/internal/adapters"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

const (
	defaultEventsTableName   = "events"
	logMsgBuildQueryFailed   = "failed to build sql query"
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgDBExecFailed       = "database execution failed"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgScanRowFailed      = "failed to scan database row"
	logMsgDecodeTagsFailed   = "failed to decode event tags from database row"
	logMsgRowsAffectedFailed = "failed to get rows affected count"
	logMsgQueryCompleted     = "query completed"
	logMsgEventSaved         = "event saved"
	logMsgEventReplaced      = "event replaced"
	logMsgEventsDeleted      = "events deleted"
	logMsgSchemaCreated      = "schema created"
	logMsgSQLExecuted        = "executed sql for: "
	logMsgOperation          = "eventstore operation: "
	logAttrError             = "error"
	logAttrQuery             = "query"
	logAttrEventID           = "event_id"
	logAttrEventCount        = "event_count"
	logAttrDurationMS        = "duration_ms"
	logAttrRowsAffected      = "rows_affected"
	logAttrReplaceKey        = "replace_key"
	logAttrConsistency       = "consistency"
	logAttrTable             = "table"
	operationQuery           = "query"
	operationSave            = "save"
	operationReplace         = "replace"
	operationDelete          = "delete"
	operationClear           = "clear"
	operationCreateSchema    = "create_schema"
	errorTypeBuildQuery      = "build_query"
	errorTypeDatabaseQuery   = "database_query"
	errorTypeDatabaseExec    = "database_exec"
	errorTypeRowScan         = "row_scan"
	errorTypeDecodeTags      = "decode_tags"
	errorTypeRowsAffected    = "rows_affected"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventStore is a PostgreSQL backed eventstore.Store that also implements eventstore.Replacer.
//
// SQL is generated with goqu and executed through a DBAdapter, so pgx, database/sql and sqlx
// connections behave identically.
type EventStore struct {
	db               adapters.DBAdapter
	eventsTableName  string
	logger           eventstore.Logger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
	contextualLogger eventstore.ContextualLogger
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool with optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options...)
}

// NewEventStoreFromPGXPoolAndReplica creates a new EventStore that sends writes and strongly
// consistent reads to the primary pool and eventually consistent reads to the replica pool.
func NewEventStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options...)
}

func newEventStore(db adapters.DBAdapter, options ...Option) (*EventStore, error) {
	es := &EventStore{
		db:              db,
		eventsTableName: defaultEventsTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// SaveEvent inserts the event. A conflicting id yields false, the stored row is left untouched.
func (es *EventStore) SaveEvent(ctx context.Context, event nostr.Event) (bool, error) {
	observer, ctx := es.startOperation(ctx, operationSave, logAttrEventID, event.ID)

	sqlQuery, buildErr := es.buildInsertQuery(event)
	if buildErr != nil {
		observer.finishError(errorTypeBuildQuery, buildErr)
		return false, buildErr
	}

	rowsAffected, execErr := es.executeStatement(ctx, sqlQuery, operationSave, observer)
	if execErr != nil {
		return false, errors.Join(eventstore.ErrSavingEventFailed, execErr)
	}

	observer.finishSuccess(logMsgEventSaved, logAttrEventID, event.ID, logAttrRowsAffected, rowsAffected)

	return rowsAffected > 0, nil
}

// ReplaceEvent upserts the event into the slot of key in one statement, the unique replace_key
// column makes concurrent replacements of the same slot serialize inside PostgreSQL.
func (es *EventStore) ReplaceEvent(ctx context.Context, event nostr.Event, key eventstore.ReplaceKey) error {
	observer, ctx := es.startOperation(ctx, operationReplace, logAttrReplaceKey, key.String())

	sqlQuery, buildErr := es.buildReplaceQuery(event, key)
	if buildErr != nil {
		observer.finishError(errorTypeBuildQuery, buildErr)
		return buildErr
	}

	if _, execErr := es.executeStatement(ctx, sqlQuery, operationReplace, observer); execErr != nil {
		return errors.Join(eventstore.ErrSavingEventFailed, execErr)
	}

	observer.finishSuccess(logMsgEventReplaced, logAttrEventID, event.ID, logAttrReplaceKey, key.String())

	return nil
}

// QueryEvents returns the union of all filter results, newest first, limit applied per filter.
func (es *EventStore) QueryEvents(ctx context.Context, filters nostr.Filters) ([]nostr.Event, error) {
	observer, ctx := es.startOperation(ctx, operationQuery,
		logAttrConsistency, eventstore.GetConsistencyLevel(ctx).String())

	sqlQuery, satisfiable, buildErr := es.buildSelectQuery(filters)
	if buildErr != nil {
		observer.finishError(errorTypeBuildQuery, buildErr)
		return nil, buildErr
	}

	if !satisfiable {
		observer.finishSuccess(logMsgQueryCompleted, logAttrEventCount, 0)
		return []nostr.Event{}, nil
	}

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery)
	es.logQueryWithDuration(sqlQuery, operationQuery, time.Since(start))

	if queryErr != nil {
		observer.finishError(errorTypeDatabaseQuery, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, queryErr)
	}
	defer es.closeRows(rows)

	events, errorType, scanErr := es.scanEvents(rows)
	if scanErr != nil {
		observer.finishError(errorType, scanErr)
		return nil, scanErr
	}

	observer.finishSuccess(logMsgQueryCompleted, logAttrEventCount, len(events))

	return events, nil
}

// DeleteEvent removes the event with the given id.
func (es *EventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	sqlQuery, buildErr := es.buildDeleteByIDQuery(id)

	return es.delete(ctx, sqlQuery, buildErr)
}

// DeleteEventsByPubkeyAndKind removes every event of the author with the given kind.
func (es *EventStore) DeleteEventsByPubkeyAndKind(ctx context.Context, pubKey string, kind int) (bool, error) {
	sqlQuery, buildErr := es.buildDeleteByPubkeyAndKindQuery(pubKey, kind)

	return es.delete(ctx, sqlQuery, buildErr)
}

// DeleteEventsByPubkeyKindAndDTag removes the addressable event occupying the (pubkey, kind, d) slot.
func (es *EventStore) DeleteEventsByPubkeyKindAndDTag(ctx context.Context, pubKey string, kind int, dTag string) (bool, error) {
	key := eventstore.ReplaceKey{PubKey: pubKey, Kind: kind, DTag: dTag, HasD: true}

	sqlQuery, buildErr := es.buildDeleteByReplaceKeyQuery(key)

	return es.delete(ctx, sqlQuery, buildErr)
}

// Clear removes all events from the table.
func (es *EventStore) Clear(ctx context.Context) error {
	observer, ctx := es.startOperation(ctx, operationClear, logAttrTable, es.eventsTableName)

	sqlQuery, buildErr := es.buildTruncateQuery()
	if buildErr != nil {
		observer.finishError(errorTypeBuildQuery, buildErr)
		return buildErr
	}

	if _, execErr := es.executeStatement(ctx, sqlQuery, operationClear, observer); execErr != nil {
		return errors.Join(eventstore.ErrDeletingEventsFailed, execErr)
	}

	observer.finishSuccess(logMsgEventsDeleted, logAttrTable, es.eventsTableName)

	return nil
}

func (es *EventStore) delete(ctx context.Context, sqlQuery string, buildErr error) (bool, error) {
	observer, ctx := es.startOperation(ctx, operationDelete)

	if buildErr != nil {
		observer.finishError(errorTypeBuildQuery, buildErr)
		return false, buildErr
	}

	rowsAffected, execErr := es.executeStatement(ctx, sqlQuery, operationDelete, observer)
	if execErr != nil {
		return false, errors.Join(eventstore.ErrDeletingEventsFailed, execErr)
	}

	observer.finishSuccess(logMsgEventsDeleted, logAttrRowsAffected, rowsAffected)

	return rowsAffected > 0, nil
}

// executeStatement runs a write statement, on failure the observer is already finished.
func (es *EventStore) executeStatement(
	ctx context.Context,
	sqlQuery string,
	action string,
	observer *operationObserver,
) (int64, error) {

	start := time.Now()
	result, execErr := es.db.Exec(ctx, sqlQuery)
	es.logQueryWithDuration(sqlQuery, action, time.Since(start))

	if execErr != nil {
		observer.finishError(errorTypeDatabaseExec, execErr, logAttrQuery, sqlQuery)
		return 0, execErr
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		observer.finishError(errorTypeRowsAffected, rowsAffectedErr)
		return 0, rowsAffectedErr
	}

	return rowsAffected, nil
}

func (es *EventStore) scanEvents(rows adapters.DBRows) ([]nostr.Event, string, error) {
	events := make([]nostr.Event, 0)

	for rows.Next() {
		var event nostr.Event
		var tagsJSON []byte

		if scanErr := rows.Scan(
			&event.ID, &event.PubKey, &event.CreatedAt, &event.Kind, &tagsJSON, &event.Content, &event.Sig,
		); scanErr != nil {
			return nil, errorTypeRowScan, errors.Join(eventstore.ErrScanningDBRowFailed, scanErr)
		}

		if decodeErr := json.Unmarshal(tagsJSON, &event.Tags); decodeErr != nil {
			return nil, errorTypeDecodeTags, errors.Join(eventstore.ErrDecodingEventTagsFailed, decodeErr)
		}

		events = append(events, event)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errorTypeDatabaseQuery, errors.Join(eventstore.ErrQueryingEventsFailed, rowsErr)
	}

	return events, "", nil
}

// closeRows safely closes database rows and logs any errors.
func (es *EventStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if es.logger != nil {
			es.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}
