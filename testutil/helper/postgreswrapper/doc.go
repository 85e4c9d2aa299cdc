// Package postgreswrapper builds PostgreSQL event stores for integration tests, over pgx, database/sql
// or sqlx depending on the ADAPTER_TYPE environment variable.
//
// Tests are skipped unless NOSTR_RELAY_TEST_POSTGRES_DSN points at a database.
//
// This is testing infrastructure - not production code.
package postgreswrapper
