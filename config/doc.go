// Package config holds the relay configuration and the factories that turn it into runtime
// dependencies: slog loggers, PostgreSQL connections (pgx pool, database/sql, sqlx) and the
// OpenTelemetry SDK providers exporting over OTLP.
//
// Values come from command line flags with environment variable fallbacks, see Flags.
package config
