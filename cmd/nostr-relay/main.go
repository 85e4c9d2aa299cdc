// Command nostr-relay runs a NIP-01 relay over WebSocket.
//
// Configuration comes from flags with NOSTR_RELAY_* environment fallbacks, see --help.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/AntonStoeckl/nostr-relay-go/config"
)

const shutdownTimeout = 10 * time.Second

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "nostr-relay:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "nostr-relay",
		Usage:   "NIP-01 nostr relay",
		Version: version,
		Flags:   config.Flags(),
		Action:  run,
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.FromCLI(cliCtx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := newObservability(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setting up observability: %w", err)
	}

	process, err := newRelayProcess(ctx, cfg, obs)
	if err != nil {
		obs.shutdown(context.Background())
		return err
	}

	if err = process.start(ctx); err != nil {
		process.close()
		obs.shutdown(context.Background())
		return err
	}

	obs.logger.Info("relay started", "addr", process.server.Addr(), "storage", cfg.Storage, "version", version)

	<-ctx.Done()

	obs.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopErr := process.stop(shutdownCtx)
	obs.shutdown(shutdownCtx)

	return stopErr
}
