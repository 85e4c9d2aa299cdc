// Package eventstore defines the persistence port of the relay and the observability interfaces
// shared by the store engines and the relay core.
//
// Engines:
//   - memoryengine: map based, for tests and single-process deployments
//   - postgresengine: PostgreSQL via pgx, database/sql or sqlx
//
// Replaceable and addressable events occupy a slot identified by ReplaceKey. Stores that implement
// Replacer swap the slot atomically:
//
//	key, err := eventstore.ReplaceKeyOf(event)
//	if err != nil {
//		// addressable event without d tag
//	}
//
//	if replacer, ok := store.(eventstore.Replacer); ok {
//		err = replacer.ReplaceEvent(ctx, event, key)
//	}
//
// Reads default to strong consistency, see WithEventualConsistency for replica reads.
package eventstore
