package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/config"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore/postgresengine"
)

// Environment variables steering the integration tests.
const (
	EnvTestDSN     = "NOSTR_RELAY_TEST_POSTGRES_DSN"
	EnvAdapterType = "ADAPTER_TYPE"
)

// Adapter type constants, selected with ADAPTER_TYPE.
const (
	TypePGXPool = "pgx"
	TypeSQLDB   = "sql"
	TypeSQLX    = "sqlx"
)

// Wrapper abstracts over the connection types an EventStore can be built from.
type Wrapper interface {
	GetEventStore() *postgresengine.EventStore
	Exec(t testing.TB, statement string)
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing.
type PGXPoolWrapper struct {
	pool *pgxpool.Pool
	es   *postgresengine.EventStore
}

func (w *PGXPoolWrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

func (w *PGXPoolWrapper) Exec(t testing.TB, statement string) {
	_, err := w.pool.Exec(context.Background(), statement)
	require.NoError(t, err)
}

// Pool exposes the underlying pool.
func (w *PGXPoolWrapper) Pool() *pgxpool.Pool {
	return w.pool
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing.
type SQLDBWrapper struct {
	db *sql.DB
	es *postgresengine.EventStore
}

func (w *SQLDBWrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

func (w *SQLDBWrapper) Exec(t testing.TB, statement string) {
	_, err := w.db.Exec(statement)
	require.NoError(t, err)
}

// DB exposes the underlying handle.
func (w *SQLDBWrapper) DB() *sql.DB {
	return w.db
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close()
}

// SQLXWrapper wraps sqlx.DB-based testing.
type SQLXWrapper struct {
	db *sqlx.DB
	es *postgresengine.EventStore
}

func (w *SQLXWrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

func (w *SQLXWrapper) Exec(t testing.TB, statement string) {
	_, err := w.db.Exec(statement)
	require.NoError(t, err)
}

// DB exposes the underlying handle.
func (w *SQLXWrapper) DB() *sqlx.DB {
	return w.db
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close()
}

// DSNOrSkip returns the test database dsn, the test is skipped when none is configured.
func DSNOrSkip(t testing.TB) string {
	dsn := os.Getenv(EnvTestDSN)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres integration test", EnvTestDSN)
	}

	return dsn
}

// CreateWrapperWithTestConfig connects with the adapter chosen by ADAPTER_TYPE (pgx by default),
// creates the schema in the given table and registers cleanup.
func CreateWrapperWithTestConfig(t testing.TB, tableName string, options ...postgresengine.Option) Wrapper {
	dsn := DSNOrSkip(t)
	ctx := context.Background()
	options = append([]postgresengine.Option{postgresengine.WithTableName(tableName)}, options...)

	var wrapper Wrapper

	switch adapterType := strings.ToLower(os.Getenv(EnvAdapterType)); adapterType {
	case TypePGXPool, "":
		pool, err := config.OpenPGXPool(ctx, dsn)
		require.NoError(t, err, "error connecting to DB pool in test setup")
		es, err := postgresengine.NewEventStoreFromPGXPool(pool, options...)
		require.NoError(t, err)
		wrapper = &PGXPoolWrapper{pool: pool, es: es}

	case TypeSQLDB:
		db, err := config.OpenSQLDB(ctx, dsn)
		require.NoError(t, err, "error connecting to DB in test setup")
		es, err := postgresengine.NewEventStoreFromSQLDB(db, options...)
		require.NoError(t, err)
		wrapper = &SQLDBWrapper{db: db, es: es}

	case TypeSQLX:
		db, err := config.OpenSQLX(ctx, dsn)
		require.NoError(t, err, "error connecting to DB in test setup")
		es, err := postgresengine.NewEventStoreFromSQLX(db, options...)
		require.NoError(t, err)
		wrapper = &SQLXWrapper{db: db, es: es}

	default:
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterType))
	}

	require.NoError(t, wrapper.GetEventStore().CreateSchema(ctx))
	require.NoError(t, wrapper.GetEventStore().Clear(ctx))

	t.Cleanup(func() {
		wrapper.Exec(t, "DROP TABLE IF EXISTS "+tableName)
		wrapper.Close()
	})

	return wrapper
}
