package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	StorageMemory = "memory"
	StoragePGX    = "pgx"
	StorageSQL    = "sql"
	StorageSQLX   = "sqlx"

	LogFormatText = "text"
	LogFormatJSON = "json"

	DefaultListenAddr      = ":7447"
	DefaultTableName       = "events"
	DefaultMaxMessageBytes = 512 * 1024
	DefaultLogLevel        = "info"
	DefaultOTelEndpoint    = "localhost:4317"
	DefaultServiceName     = "nostr-relay"
)

var (
	ErrUnknownStorage       = errors.New("unknown storage engine")
	ErrMissingPostgresDSN   = errors.New("postgres storage requires a dsn")
	ErrReplicaRequiresPGX   = errors.New("a replica dsn is only supported with the pgx storage engine")
	ErrUnknownLogLevel      = errors.New("unknown log level")
	ErrUnknownLogFormat     = errors.New("unknown log format")
	ErrInvalidMaxMessageLen = errors.New("max message bytes must be positive")
	ErrEmptyListenAddr      = errors.New("listen address must not be empty")
	ErrEmptyOTelEndpoint    = errors.New("otel requires an otlp endpoint")
)

// Config is the complete runtime configuration of the relay.
type Config struct {
	ListenAddr         string
	Storage            string
	PostgresDSN        string
	PostgresReplicaDSN string
	TableName          string
	AllowedOrigins     []string
	MaxMessageBytes    int64
	LogLevel           string
	LogFormat          string
	TestMode           bool
	AdminKeys          []string
	OTel               bool
	OTelEndpoint       string
}

// Default returns the configuration of a relay with in-memory storage and text logs.
func Default() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		Storage:         StorageMemory,
		TableName:       DefaultTableName,
		MaxMessageBytes: DefaultMaxMessageBytes,
		LogLevel:        DefaultLogLevel,
		LogFormat:       LogFormatText,
		OTelEndpoint:    DefaultOTelEndpoint,
	}
}

// Validate rejects unknown values and inconsistent combinations.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return ErrEmptyListenAddr
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePGX, StorageSQL, StorageSQLX:
		if c.PostgresDSN == "" {
			return ErrMissingPostgresDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage)
	}

	if c.PostgresReplicaDSN != "" && c.Storage != StoragePGX {
		return ErrReplicaRequiresPGX
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if !slices.Contains([]string{LogFormatText, LogFormatJSON}, c.LogFormat) {
		return fmt.Errorf("%w: %q", ErrUnknownLogFormat, c.LogFormat)
	}

	if c.MaxMessageBytes <= 0 {
		return ErrInvalidMaxMessageLen
	}

	if c.OTel && c.OTelEndpoint == "" {
		return ErrEmptyOTelEndpoint
	}

	return nil
}

// UsesPostgres reports whether a PostgreSQL engine is configured.
func (c Config) UsesPostgres() bool {
	return c.Storage != StorageMemory
}

// SplitList turns a comma separated flag value into a trimmed list without empty entries.
func SplitList(value string) []string {
	items := make([]string, 0)

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
