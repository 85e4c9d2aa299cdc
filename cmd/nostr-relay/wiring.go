package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/nostr-relay-go/config"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/nostr-relay-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/oteladapters"
	"github.com/AntonStoeckl/nostr-relay-go/relay"
	"github.com/AntonStoeckl/nostr-relay-go/transport/wsserver"
)

const instrumentationName = "github.com/AntonStoeckl/nostr-relay-go"

// observability bundles what every component gets injected.
type observability struct {
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metrics          eventstore.MetricsCollector
	tracing          eventstore.TracingCollector
	providers        *config.OTelProviders
}

func newObservability(ctx context.Context, cfg config.Config) (observability, error) {
	return newObservabilityTo(ctx, cfg, os.Stderr)
}

func newObservabilityTo(ctx context.Context, cfg config.Config, w io.Writer) (observability, error) {
	if !cfg.OTel {
		return observability{logger: slog.New(cfg.NewLogHandler(w))}, nil
	}

	providers, err := cfg.NewOTelProviders(ctx, version)
	if err != nil {
		return observability{}, err
	}

	bridge := oteladapters.NewSlogBridgeLogger(instrumentationName, providers.LoggerProvider, cfg.EffectiveLogLevel())

	return observability{
		logger:           bridge,
		contextualLogger: bridge,
		metrics:          oteladapters.NewMetricsCollector(otel.Meter(instrumentationName)),
		tracing:          oteladapters.NewTracingCollector(otel.Tracer(instrumentationName)),
		providers:        providers,
	}, nil
}

func (o observability) relayOptions() []relay.Option {
	options := []relay.Option{relay.WithLogger(o.logger), relay.WithMetrics(o.metrics), relay.WithTracing(o.tracing)}
	if o.contextualLogger != nil {
		options = append(options, relay.WithContextualLogger(o.contextualLogger))
	}

	return options
}

func (o observability) postgresOptions(cfg config.Config) []postgresengine.Option {
	options := []postgresengine.Option{
		postgresengine.WithTableName(cfg.TableName),
		postgresengine.WithLogger(o.logger),
		postgresengine.WithMetrics(o.metrics),
		postgresengine.WithTracing(o.tracing),
	}
	if o.contextualLogger != nil {
		options = append(options, postgresengine.WithContextualLogger(o.contextualLogger))
	}

	return options
}

func (o observability) shutdown(ctx context.Context) {
	if o.providers == nil {
		return
	}

	if err := o.providers.Shutdown(ctx); err != nil {
		o.logger.Warn("flushing telemetry failed", "error", err.Error())
	}
}

// relayProcess is the assembled relay with the resources it has to release.
type relayProcess struct {
	relay    *relay.Relay
	server   *wsserver.Server
	registry *relay.Registry
	store    eventstore.Store
	closers  []func() error
}

func newRelayProcess(ctx context.Context, cfg config.Config, obs observability) (*relayProcess, error) {
	process := &relayProcess{}

	store, err := process.openStore(ctx, cfg, obs)
	if err != nil {
		process.close()
		return nil, err
	}
	process.store = store

	if err = process.assemble(cfg, obs); err != nil {
		process.close()
		return nil, err
	}

	return process, nil
}

func (p *relayProcess) openStore(ctx context.Context, cfg config.Config, obs observability) (eventstore.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memoryengine.NewEventStore(memoryengine.WithLogger(obs.logger), memoryengine.WithMetrics(obs.metrics))

	case config.StoragePGX:
		pool, err := config.OpenPGXPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() error { pool.Close(); return nil })

		if cfg.PostgresReplicaDSN == "" {
			store, err := postgresengine.NewEventStoreFromPGXPool(pool, obs.postgresOptions(cfg)...)
			return withSchema(ctx, store, err)
		}

		replica, err := config.OpenPGXPool(ctx, cfg.PostgresReplicaDSN)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() error { replica.Close(); return nil })

		store, err := postgresengine.NewEventStoreFromPGXPoolAndReplica(pool, replica, obs.postgresOptions(cfg)...)
		return withSchema(ctx, store, err)

	case config.StorageSQL:
		db, err := config.OpenSQLDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, db.Close)

		store, err := postgresengine.NewEventStoreFromSQLDB(db, obs.postgresOptions(cfg)...)
		return withSchema(ctx, store, err)

	case config.StorageSQLX:
		db, err := config.OpenSQLX(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, db.Close)

		store, err := postgresengine.NewEventStoreFromSQLX(db, obs.postgresOptions(cfg)...)
		return withSchema(ctx, store, err)

	default:
		return nil, config.ErrUnknownStorage
	}
}

// withSchema creates the events table and indexes if they do not exist yet.
func withSchema(ctx context.Context, store *postgresengine.EventStore, err error) (eventstore.Store, error) {
	if err != nil {
		return nil, err
	}

	if err = store.CreateSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func (p *relayProcess) assemble(cfg config.Config, obs observability) error {
	options := obs.relayOptions()

	validator, err := nostr.NewSchnorrValidator(nostr.DefaultVerifiedCacheSize)
	if err != nil {
		return err
	}

	if p.registry, err = relay.NewRegistry(options...); err != nil {
		return err
	}

	policy, err := relay.NewLifecyclePolicy(validator, p.store, p.registry, options...)
	if err != nil {
		return err
	}

	serverOptions := []wsserver.Option{
		wsserver.WithAddr(cfg.ListenAddr),
		wsserver.WithAllowedOrigins(cfg.AllowedOrigins...),
		wsserver.WithReadLimit(cfg.MaxMessageBytes),
		wsserver.WithLogger(obs.logger),
		wsserver.WithMetrics(obs.metrics),
	}
	if len(cfg.AdminKeys) > 0 {
		serverOptions = append(serverOptions, wsserver.WithAdmin(p.registry, cfg.AdminKeys...))
	}

	if p.server, err = wsserver.New(serverOptions...); err != nil {
		return err
	}

	engine, err := relay.NewEngine(p.server, p.registry, policy, p.store, options...)
	if err != nil {
		return err
	}

	p.relay, err = relay.New(p.server, engine, p.registry, options...)

	return err
}

func (p *relayProcess) start(ctx context.Context) error {
	return p.relay.Start(ctx)
}

func (p *relayProcess) stop(ctx context.Context) error {
	err := p.relay.Stop(ctx)

	return errors.Join(err, p.close())
}

// close releases the storage connections in reverse order of opening.
func (p *relayProcess) close() error {
	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, p.closers[i]())
	}
	p.closers = nil

	return err
}
