package postgresengine

import (
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

// ErrInvalidTableName is returned for table names that are not plain lowercase identifiers.
var ErrInvalidTableName = errors.New("table name must be a lowercase sql identifier")

const (
	colID           = "id"
	colPubKey       = "pubkey"
	colCreatedAt    = "created_at"
	colKind         = "kind"
	colTags         = "tags"
	colContent      = "content"
	colSig          = "sig"
	colReplaceKey   = "replace_key"
	colTagIndex     = "tag_index"
	dialectPostgres = "postgres"
	aliasMatches    = "matches"
	castJsonb       = "?::jsonb"
	castTextArray   = "?::text[]"
	tagOverlap      = "? && ?::text[]"
	tagIndexSep     = ":"
)

var selectColumns = []any{colID, colPubKey, colCreatedAt, colKind, colTags, colContent, colSig}

func dialect() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

// tagIndexOf lists "<name>:<value>" for every single-character tag with a value.
func tagIndexOf(event nostr.Event) []string {
	index := make([]string, 0, len(event.Tags))

	for _, tag := range event.Tags {
		if len(tag) >= 2 && nostr.IsSingleCharTagName(tag[0]) {
			index = append(index, tag[0]+tagIndexSep+tag[1])
		}
	}

	return index
}

// replaceKeyColumn is the replace_key value of an event, NULL for events without a slot.
func replaceKeyColumn(event nostr.Event) any {
	key, err := eventstore.ReplaceKeyOf(event)
	if err != nil {
		return nil
	}

	return key.String()
}

func (es *EventStore) eventRecord(event nostr.Event, replaceKey any) (goqu.Record, error) {
	tags := event.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, errors.Join(eventstore.ErrBuildingQueryFailed, err)
	}

	return goqu.Record{
		colID:         event.ID,
		colPubKey:     event.PubKey,
		colCreatedAt:  event.CreatedAt,
		colKind:       event.Kind,
		colTags:       goqu.L(castJsonb, string(tagsJSON)),
		colContent:    event.Content,
		colSig:        event.Sig,
		colReplaceKey: replaceKey,
		colTagIndex:   goqu.L(castTextArray, pq.Array(tagIndexOf(event))),
	}, nil
}

func (es *EventStore) buildInsertQuery(event nostr.Event) (string, error) {
	record, err := es.eventRecord(event, replaceKeyColumn(event))
	if err != nil {
		return "", err
	}

	insertStmt := dialect().
		Insert(es.eventsTableName).
		Rows(record).
		OnConflict(goqu.DoNothing())

	return toSQL(insertStmt)
}

func (es *EventStore) buildReplaceQuery(event nostr.Event, key eventstore.ReplaceKey) (string, error) {
	record, err := es.eventRecord(event, key.String())
	if err != nil {
		return "", err
	}

	insertStmt := dialect().
		Insert(es.eventsTableName).
		Rows(record).
		OnConflict(goqu.DoUpdate(colReplaceKey, goqu.Record{
			colID:        goqu.I("excluded." + colID),
			colPubKey:    goqu.I("excluded." + colPubKey),
			colCreatedAt: goqu.I("excluded." + colCreatedAt),
			colKind:      goqu.I("excluded." + colKind),
			colTags:      goqu.I("excluded." + colTags),
			colContent:   goqu.I("excluded." + colContent),
			colSig:       goqu.I("excluded." + colSig),
			colTagIndex:  goqu.I("excluded." + colTagIndex),
		}))

	return toSQL(insertStmt)
}

// buildSelectQuery returns false when no filter can match anything, the caller then skips the database.
func (es *EventStore) buildSelectQuery(filters nostr.Filters) (string, bool, error) {
	var union *goqu.SelectDataset

	for _, filter := range filters {
		where, satisfiable := whereClause(filter)
		if !satisfiable {
			continue
		}

		selectStmt := dialect().
			From(es.eventsTableName).
			Select(selectColumns...).
			Where(where...).
			Order(goqu.C(colCreatedAt).Desc(), goqu.C(colID).Asc())

		if filter.Limit != nil {
			selectStmt = selectStmt.Limit(uint(*filter.Limit))
		}

		if union == nil {
			union = selectStmt
			continue
		}

		union = union.Union(selectStmt)
	}

	if union == nil {
		return "", false, nil
	}

	finalStmt := dialect().
		From(union.As(aliasMatches)).
		Select(selectColumns...).
		Order(goqu.C(colCreatedAt).Desc(), goqu.C(colID).Asc())

	sqlQuery, err := toSQL(finalStmt)
	if err != nil {
		return "", false, err
	}

	return sqlQuery, true, nil
}

// whereClause translates a filter into SQL conditions. A present but empty value set, a zero limit
// or an invalid tag filter can never match, that is reported as not satisfiable.
func whereClause(filter nostr.Filter) ([]exp.Expression, bool) {
	where := make([]exp.Expression, 0)

	if filter.Limit != nil && *filter.Limit == 0 {
		return nil, false
	}

	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, false
		}
		where = append(where, goqu.C(colID).In(filter.IDs))
	}

	if filter.Authors != nil {
		if len(filter.Authors) == 0 {
			return nil, false
		}
		where = append(where, goqu.C(colPubKey).In(filter.Authors))
	}

	if filter.Kinds != nil {
		if len(filter.Kinds) == 0 {
			return nil, false
		}
		where = append(where, goqu.C(colKind).In(filter.Kinds))
	}

	if filter.Since != nil {
		where = append(where, goqu.C(colCreatedAt).Gte(*filter.Since))
	}

	if filter.Until != nil {
		where = append(where, goqu.C(colCreatedAt).Lte(*filter.Until))
	}

	for name, values := range filter.Tags {
		if !nostr.IsSingleCharTagName(name) || len(values) == 0 {
			return nil, false
		}

		tagValues := make([]string, 0, len(values))
		for _, value := range values {
			tagValues = append(tagValues, name+tagIndexSep+value)
		}

		where = append(where, goqu.L(tagOverlap, goqu.C(colTagIndex), pq.Array(tagValues)))
	}

	return where, true
}

func (es *EventStore) buildDeleteByIDQuery(id string) (string, error) {
	return toSQL(dialect().Delete(es.eventsTableName).Where(goqu.C(colID).Eq(id)))
}

func (es *EventStore) buildDeleteByPubkeyAndKindQuery(pubKey string, kind int) (string, error) {
	return toSQL(dialect().Delete(es.eventsTableName).Where(
		goqu.C(colPubKey).Eq(pubKey),
		goqu.C(colKind).Eq(kind),
	))
}

func (es *EventStore) buildDeleteByReplaceKeyQuery(key eventstore.ReplaceKey) (string, error) {
	return toSQL(dialect().Delete(es.eventsTableName).Where(goqu.C(colReplaceKey).Eq(key.String())))
}

func (es *EventStore) buildTruncateQuery() (string, error) {
	return toSQL(dialect().Truncate(es.eventsTableName))
}

type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func toSQL(builder sqlBuilder) (string, error) {
	sqlQuery, _, err := builder.ToSQL()
	if err != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}
