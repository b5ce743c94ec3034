// sync-worker replicates one shard of collections from the document
// store into the relational staging store and onward into the
// warehouse. Run one process per shard after the coordinator; an
// optional collection argument syncs just that collection, ignoring
// shard assignment.
//
// Usage:
//
//	sync-worker <worker_id> [collection]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/carewell-health/datahub-sync/pkg/config"
	"github.com/carewell-health/datahub-sync/pkg/database"
	"github.com/carewell-health/datahub-sync/pkg/ledger"
	"github.com/carewell-health/datahub-sync/pkg/logging"
	"github.com/carewell-health/datahub-sync/pkg/secrets"
	"github.com/carewell-health/datahub-sync/pkg/source"
	"github.com/carewell-health/datahub-sync/pkg/staging"
	"github.com/carewell-health/datahub-sync/pkg/syncer"
	"github.com/carewell-health/datahub-sync/pkg/warehouse"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sync-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		return fmt.Errorf("usage: sync-worker <worker_id> [collection]")
	}
	workerID, err := strconv.Atoi(os.Args[1])
	if err != nil {
		return fmt.Errorf("worker_id must be an integer, got %q", os.Args[1])
	}
	var override string
	if len(os.Args) == 3 {
		override = os.Args[2]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorkerID(workerID); err != nil {
		return err
	}

	cycleID := ulid.Make().String()
	logger, err := logging.New(cfg.Env, "mongo2postgres", fmt.Sprintf("worker-%d", workerID), cfg.Team, cycleID)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(logging.Labels{"worker": workerID})
	logger.Info("worker starting", logging.Labels{"override": override})

	controlDB, err := database.Connect(ctx, &database.Config{
		DSN:            cfg.Control.DSN(cfg.ControlDatabase()),
		MaxConnections: cfg.Control.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect control database: %w", err)
	}
	defer controlDB.Close()

	stagingDB, err := database.Connect(ctx, &database.Config{
		DSN:            cfg.Staging.DSN(cfg.StagingDatabase()),
		MaxConnections: cfg.Staging.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect staging database: %w", err)
	}
	defer stagingDB.Close()

	sourceURI, err := secrets.SourceURI(ctx, &cfg.Source)
	if err != nil {
		return err
	}
	store, err := source.Connect(ctx, sourceURI, cfg.Source.Database)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	promoter, err := warehouse.New(ctx,
		cfg.Warehouse.ProjectID,
		cfg.BQDataset(),
		cfg.Warehouse.PGDataset,
		time.Duration(cfg.Warehouse.PollSeconds)*time.Second,
		logger.Zap())
	if err != nil {
		return err
	}
	defer promoter.Close()

	repo := ledger.New(controlDB.Pool, cfg.LedgerTable(), logger.Zap())
	loader := staging.New(stagingDB.Pool, logger.Zap())

	worker := syncer.NewWorker(syncer.WorkerOptions{
		ID:          workerID,
		BatchSize:   cfg.BatchSize,
		ResetColumn: cfg.ResetColumn,
		TestRun:     cfg.IsTest(),
	}, store, repo, loader, promoter, logger)

	if err := worker.Run(ctx, override); err != nil {
		logger.Error("worker aborted", err, nil)
		return err
	}

	logger.Info("worker finished", nil)
	return nil
}
