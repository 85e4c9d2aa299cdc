package config

import (
	"github.com/urfave/cli/v2"
)

const envPrefix = "NOSTR_RELAY_"

const (
	FlagListen             = "listen"
	FlagStorage            = "storage"
	FlagPostgresDSN        = "postgres.dsn"
	FlagPostgresReplicaDSN = "postgres.replica-dsn"
	FlagTable              = "postgres.table"
	FlagAllowedOrigins     = "allowed-origins"
	FlagMaxMessageBytes    = "max-message-bytes"
	FlagLogLevel           = "log.level"
	FlagLogFormat          = "log.format"
	FlagTestMode           = "test-mode"
	FlagAdminKeys          = "admin.keys"
	FlagOTel               = "otel"
	FlagOTelEndpoint       = "otel.endpoint"
)

// Flags returns every relay flag. Each call builds new flag values, urfave/cli writes parsed
// values back into them.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagListen,
			Usage:   "Address the websocket server listens on",
			Value:   DefaultListenAddr,
			EnvVars: []string{envPrefix + "LISTEN"},
		},
		&cli.StringFlag{
			Name:    FlagStorage,
			Usage:   "Storage engine (memory|pgx|sql|sqlx)",
			Value:   StorageMemory,
			EnvVars: []string{envPrefix + "STORAGE"},
		},
		&cli.StringFlag{
			Name:    FlagPostgresDSN,
			Usage:   "PostgreSQL connection string of the primary",
			EnvVars: []string{envPrefix + "POSTGRES_DSN"},
		},
		&cli.StringFlag{
			Name:    FlagPostgresReplicaDSN,
			Usage:   "PostgreSQL connection string of a read replica (pgx only)",
			EnvVars: []string{envPrefix + "POSTGRES_REPLICA_DSN"},
		},
		&cli.StringFlag{
			Name:    FlagTable,
			Usage:   "Name of the events table",
			Value:   DefaultTableName,
			EnvVars: []string{envPrefix + "TABLE"},
		},
		&cli.StringFlag{
			Name:    FlagAllowedOrigins,
			Usage:   "Comma separated list of allowed websocket origins, empty allows all",
			EnvVars: []string{envPrefix + "ALLOWED_ORIGINS"},
		},
		&cli.Int64Flag{
			Name:    FlagMaxMessageBytes,
			Usage:   "Maximum size of an inbound websocket message",
			Value:   DefaultMaxMessageBytes,
			EnvVars: []string{envPrefix + "MAX_MESSAGE_BYTES"},
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Usage:   "Log level (debug|info|warn|error)",
			Value:   DefaultLogLevel,
			EnvVars: []string{envPrefix + "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    FlagLogFormat,
			Usage:   "Log format (text|json)",
			Value:   LogFormatText,
			EnvVars: []string{envPrefix + "LOG_FORMAT"},
		},
		&cli.BoolFlag{
			Name:    FlagTestMode,
			Usage:   "Only log errors",
			EnvVars: []string{envPrefix + "TEST_MODE"},
		},
		&cli.StringFlag{
			Name:    FlagAdminKeys,
			Usage:   "Comma separated API keys for the admin endpoints, empty disables them",
			EnvVars: []string{envPrefix + "ADMIN_KEYS"},
		},
		&cli.BoolFlag{
			Name:    FlagOTel,
			Usage:   "Export logs, metrics and traces over OTLP",
			EnvVars: []string{envPrefix + "OTEL"},
		},
		&cli.StringFlag{
			Name:    FlagOTelEndpoint,
			Usage:   "OTLP gRPC endpoint for logs, metrics and traces",
			Value:   DefaultOTelEndpoint,
			EnvVars: []string{envPrefix + "OTEL_ENDPOINT"},
		},
	}
}

// FromCLI reads the configuration from a parsed cli context and validates it.
func FromCLI(ctx *cli.Context) (Config, error) {
	cfg := Config{
		ListenAddr:         ctx.String(FlagListen),
		Storage:            ctx.String(FlagStorage),
		PostgresDSN:        ctx.String(FlagPostgresDSN),
		PostgresReplicaDSN: ctx.String(FlagPostgresReplicaDSN),
		TableName:          ctx.String(FlagTable),
		AllowedOrigins:     SplitList(ctx.String(FlagAllowedOrigins)),
		MaxMessageBytes:    ctx.Int64(FlagMaxMessageBytes),
		LogLevel:           ctx.String(FlagLogLevel),
		LogFormat:          ctx.String(FlagLogFormat),
		TestMode:           ctx.Bool(FlagTestMode),
		AdminKeys:          SplitList(ctx.String(FlagAdminKeys)),
		OTel:               ctx.Bool(FlagOTel),
		OTelEndpoint:       ctx.String(FlagOTelEndpoint),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
