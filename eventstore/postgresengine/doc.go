// Package postgresengine provides a PostgreSQL implementation of eventstore.Store.
//
// One row per event. Besides the NIP-01 fields the table carries:
//   - replace_key: unique slot key of replaceable and addressable events, NULL otherwise
//   - tag_index: "<name>:<value>" for every single-character tag, backed by a GIN index
//
// Replacement is a single INSERT ... ON CONFLICT (replace_key) DO UPDATE, which makes concurrent
// publishes for the same (pubkey, kind[, d]) slot safe without explicit locking. Queries run one
// SELECT per filter (each with its own ORDER BY and LIMIT) and UNION the results.
//
// Connections can be pgx pools, database/sql or sqlx. With a pgx replica pool, reads that carry
// eventstore.WithEventualConsistency are routed to the replica.
//
// Usage:
//
//	pool, _ := pgxpool.NewWithConfig(ctx, config.PGXPoolConfig(dsn))
//	es, err := postgresengine.NewEventStoreFromPGXPool(pool, postgresengine.WithLogger(logger))
//	if err != nil {
//		// handle error
//	}
//
//	if err := es.CreateSchema(ctx); err != nil {
//		// handle error
//	}
package postgresengine
