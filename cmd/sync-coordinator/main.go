// sync-coordinator prepares one sync cycle: it seeds ledger entries for
// newly discovered collections, refreshes source row counts, and deals
// collections across worker shards. Run it once per cycle, before the
// workers.
//
// Usage:
//
//	sync-coordinator <num_workers>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/carewell-health/datahub-sync/pkg/config"
	"github.com/carewell-health/datahub-sync/pkg/database"
	"github.com/carewell-health/datahub-sync/pkg/ledger"
	"github.com/carewell-health/datahub-sync/pkg/logging"
	"github.com/carewell-health/datahub-sync/pkg/secrets"
	"github.com/carewell-health/datahub-sync/pkg/source"
	"github.com/carewell-health/datahub-sync/pkg/syncer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sync-coordinator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: sync-coordinator <num_workers>")
	}
	numWorkers, err := strconv.Atoi(os.Args[1])
	if err != nil || numWorkers < 1 {
		return fmt.Errorf("num_workers must be a positive integer, got %q", os.Args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.NumWorkers = numWorkers

	cycleID := ulid.Make().String()
	logger, err := logging.New(cfg.Env, "mongo2postgres", "coordinator", cfg.Team, cycleID)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("coordinator starting", logging.Labels{"num_workers": numWorkers})

	controlDSN := cfg.Control.DSN(cfg.ControlDatabase())
	if err := database.RunMigrations(controlDSN, logger.Zap()); err != nil {
		return err
	}
	controlDB, err := database.Connect(ctx, &database.Config{
		DSN:            controlDSN,
		MaxConnections: cfg.Control.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect control database: %w", err)
	}
	defer controlDB.Close()

	sourceURI, err := secrets.SourceURI(ctx, &cfg.Source)
	if err != nil {
		return err
	}
	store, err := source.Connect(ctx, sourceURI, cfg.Source.Database)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	repo := ledger.New(controlDB.Pool, cfg.LedgerTable(), logger.Zap())
	coordinator := syncer.NewCoordinator(store, repo, cfg.NumWorkers, logger)
	if err := coordinator.Run(ctx); err != nil {
		logger.Error("coordination failed", err, nil)
		return err
	}

	logger.Info("coordinator finished", nil)
	return nil
}
