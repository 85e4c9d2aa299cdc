package postgresengine

import (
	"context"
	_ "embed"
	"errors"
	"strings"
)

const tablePlaceholder = "__TABLE__"

//go:embed schema.sql
var schemaSQL string

// ErrCreatingSchemaFailed is returned when the DDL could not be applied.
var ErrCreatingSchemaFailed = errors.New("creating schema failed")

// SchemaStatements returns the DDL statements for the configured table, in execution order.
func (es *EventStore) SchemaStatements() []string {
	ddl := strings.ReplaceAll(schemaSQL, tablePlaceholder, es.eventsTableName)

	statements := make([]string, 0)
	for _, statement := range strings.Split(ddl, ";") {
		if statement = strings.TrimSpace(statement); statement != "" {
			statements = append(statements, statement)
		}
	}

	return statements
}

// CreateSchema creates the events table and its indexes if they do not exist yet.
func (es *EventStore) CreateSchema(ctx context.Context) error {
	observer, ctx := es.startOperation(ctx, operationCreateSchema, logAttrTable, es.eventsTableName)

	for _, statement := range es.SchemaStatements() {
		if _, err := es.executeStatement(ctx, statement, operationCreateSchema, observer); err != nil {
			return errors.Join(ErrCreatingSchemaFailed, err)
		}
	}

	observer.finishSuccess(logMsgSchemaCreated, logAttrTable, es.eventsTableName)

	return nil
}
