// Package adapters provides database adapter implementations for the PostgreSQL event store.
//
// Three connection types are supported: pgxpool.Pool, sql.DB and sqlx.DB. All adapters expose
// the same DBAdapter interface, so the event store builds its SQL once and executes it anywhere.
// Only the pgx adapter can route reads to a replica pool.
package adapters
