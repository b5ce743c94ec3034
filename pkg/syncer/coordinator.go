package syncer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/carewell-health/datahub-sync/pkg/logging"
)

const defaultRefreshConcurrency = 4

// Coordinator runs before a cycle's workers. It seeds ledger entries
// for newly discovered collections, refreshes every entry's source
// cardinality, and rebalances shard assignment. It never touches
// staging, live, or warehouse tables.
type Coordinator struct {
	source             SourceStore
	ledger             Ledger
	numWorkers         int
	refreshConcurrency int
	logger             *logging.Logger
}

// NewCoordinator creates a Coordinator for numWorkers shards.
func NewCoordinator(source SourceStore, ledger Ledger, numWorkers int, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		source:             source,
		ledger:             ledger,
		numWorkers:         numWorkers,
		refreshConcurrency: defaultRefreshConcurrency,
		logger:             logger,
	}
}

// Run executes one coordination pass. Any error is fatal for the
// cycle: workers must not start against a half-seeded ledger.
func (c *Coordinator) Run(ctx context.Context) error {
	names, err := c.source.CollectionNames(ctx)
	if err != nil {
		return fmt.Errorf("enumerate source collections: %w", err)
	}
	for _, name := range names {
		if err := c.ledger.EnsureEntry(ctx, name); err != nil {
			return fmt.Errorf("seed ledger for %s: %w", name, err)
		}
	}
	c.logger.Info("ledger seeded", logging.Labels{"collections": len(names)})

	tracked, err := c.ledger.Collections(ctx)
	if err != nil {
		return fmt.Errorf("list ledger entries: %w", err)
	}

	// Cardinality queries are metadata reads; a handful in flight is
	// safe against the read-only source.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.refreshConcurrency)
	for _, name := range tracked {
		g.Go(func() error {
			n, err := c.source.EstimatedCount(gctx, name)
			if err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			if err := c.ledger.RefreshCardinality(gctx, name, n); err != nil {
				return fmt.Errorf("refresh cardinality of %s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := c.ledger.AssignWorkers(ctx, c.numWorkers); err != nil {
		return fmt.Errorf("assign workers: %w", err)
	}
	c.logger.Info("cycle coordinated", logging.Labels{
		"collections": len(tracked),
		"num_workers": c.numWorkers,
	})
	return nil
}
