package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
	"github.com/carewell-health/datahub-sync/pkg/coerce"
	"github.com/carewell-health/datahub-sync/pkg/config"
	"github.com/carewell-health/datahub-sync/pkg/discover"
	"github.com/carewell-health/datahub-sync/pkg/logging"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

// syncState tracks a collection's progress within one cycle. Only the
// terminal states reach the ledger; the rest exist for log correlation.
type syncState string

const (
	stateQueued        syncState = "queued"
	stateDiscovering   syncState = "discovering"
	stateLoading       syncState = "loading"
	statePromoting     syncState = "promoting"
	stateVerifyingRel  syncState = "verifying_rel"
	statePromotingWhse syncState = "promoting_whse"
	stateVerifyingWhse syncState = "verifying_whse"
	stateSuccess       syncState = "success"
	stateFailure       syncState = "failure"
)

// Worker replicates one shard's collections, sequentially, lightest
// first. A collection's failure never halts the shard; only a ledger
// failure does, because outcomes could no longer be recorded.
type Worker struct {
	id          int
	batchSize   int
	documentCap int64 // 0 = unlimited
	resetColumn bool
	source      SourceStore
	ledger      Ledger
	loader      Loader
	warehouse   WarehousePromoter
	logger      *logging.Logger
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	ID          int
	BatchSize   int
	ResetColumn bool
	// TestRun caps each collection at the test document limit.
	TestRun bool
}

// NewWorker creates a Worker over the given stores.
func NewWorker(opts WorkerOptions, source SourceStore, ledger Ledger, loader Loader, warehouse WarehousePromoter, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 5000
	}
	var docCap int64
	if opts.TestRun {
		docCap = config.TestDocumentCap
	}
	return &Worker{
		id:          opts.ID,
		batchSize:   opts.BatchSize,
		documentCap: docCap,
		resetColumn: opts.ResetColumn,
		source:      source,
		ledger:      ledger,
		loader:      loader,
		warehouse:   warehouse,
		logger:      logger,
	}
}

// Run processes the worker's shard for the daily lane, or just the
// override collection when one is given. It returns an error only when
// the ledger itself fails.
func (w *Worker) Run(ctx context.Context, override string) error {
	collections := []string{override}
	if override == "" {
		var err error
		collections, err = w.ledger.FetchShard(ctx, w.id, models.FreqDaily)
		if err != nil {
			return fmt.Errorf("fetch shard %d: %w", w.id, err)
		}
	}
	w.logger.Info("shard start", logging.Labels{
		"worker":      w.id,
		"collections": len(collections),
	})

	for _, collection := range collections {
		if err := w.syncCollection(ctx, collection); err != nil {
			// Only ledger failures propagate; everything else was
			// recorded and the shard moves on.
			return err
		}
	}
	return nil
}

// syncCollection runs one collection end to end and records the
// outcome. Schema drift is retried exactly once with discovery forced.
func (w *Worker) syncCollection(ctx context.Context, collection string) error {
	labels := logging.Labels{"collection": collection, "worker": w.id}
	w.transition(collection, stateQueued)

	entry, err := w.ledger.Get(ctx, collection)
	if err != nil {
		return fmt.Errorf("read ledger entry for %s: %w", collection, err)
	}
	expected := entry.NumRows

	err = w.runOnce(ctx, collection, expected, w.resetColumn)
	if errors.Is(err, apperrors.ErrSchemaDrift) && !w.resetColumn {
		w.logger.Warn("schema drift, retrying with discovery forced", labels)
		err = w.runOnce(ctx, collection, expected, true)
	}

	if err != nil {
		w.transition(collection, stateFailure)
		w.logger.Error("collection sync failed", err, labels)
		if markErr := w.ledger.Mark(ctx, collection, models.StatusFailure); markErr != nil {
			return fmt.Errorf("record failure of %s: %w", collection, markErr)
		}
		w.logger.Metric("failure_rows", float64(expected), labels)
		return nil
	}

	w.transition(collection, stateSuccess)
	if err := w.ledger.Mark(ctx, collection, models.StatusSuccess); err != nil {
		return fmt.Errorf("record success of %s: %w", collection, err)
	}
	// Metric name kept misspelled: dashboards already aggregate on it.
	w.logger.Metric("sucess_rows", float64(expected), labels)
	return nil
}

// runOnce performs a single attempt: discover (or reuse) the schema,
// rebuild staging, stream the documents, promote, and verify both
// tiers against the expected cardinality.
func (w *Worker) runOnce(ctx context.Context, collection string, expected int64, reset bool) error {
	w.transition(collection, stateDiscovering)
	descriptors, err := w.descriptors(ctx, collection, reset)
	if err != nil {
		return err
	}
	if len(descriptors) == 0 {
		// A collection that has never held a document yields no schema
		// to build from. Nothing to load, nothing to promote.
		if expected == 0 {
			w.logger.Info("no documents and no schema yet, skipping", logging.Labels{"collection": collection})
			return nil
		}
		return fmt.Errorf("no columns discovered for %s", collection)
	}

	if err := w.loader.CreateStaging(ctx, collection, descriptors); err != nil {
		return err
	}

	w.transition(collection, stateLoading)
	if expected == 0 {
		w.logger.Info("no documents expected, skipping copy", logging.Labels{"collection": collection})
	} else if err := w.copyDocuments(ctx, collection, descriptors); err != nil {
		return err
	}

	w.transition(collection, statePromoting)
	if err := w.loader.Promote(ctx, collection); err != nil {
		return err
	}

	w.transition(collection, stateVerifyingRel)
	actual, err := w.loader.CountRows(ctx, collection)
	if err != nil {
		return err
	}
	// Lower bound only: the source may grow while the cycle runs.
	if actual < expected {
		return &apperrors.RowCountMismatchError{Table: collection, Expected: expected, Actual: actual}
	}

	w.transition(collection, statePromotingWhse)
	if err := w.warehouse.Promote(ctx, collection); err != nil {
		return err
	}

	w.transition(collection, stateVerifyingWhse)
	whseActual, err := w.warehouse.CountRows(ctx, collection)
	if err != nil {
		return err
	}
	if whseActual < expected {
		return &apperrors.RowCountMismatchError{Table: collection, Expected: expected, Actual: whseActual}
	}
	return nil
}

// descriptors reuses the live table's columns unless discovery is
// forced or no live table exists yet. On the reuse path, source fields
// absent from the live columns are silently dropped during alignment.
func (w *Worker) descriptors(ctx context.Context, collection string, reset bool) ([]models.FieldDescriptor, error) {
	if !reset {
		existing, err := w.loader.LiveColumns(ctx, collection)
		if err == nil && len(existing) > 0 {
			return existing, nil
		}
		if err != nil {
			w.logger.Warn("cannot reuse live columns, discovering", logging.Labels{
				"collection": collection,
				"error":      err.Error(),
			})
		}
	}
	return discover.Fields(ctx, w.source, collection, w.logger.Zap())
}

// copyDocuments streams the collection into staging in descriptor
// order, flushing a bulk-copy batch whenever the buffer fills.
func (w *Worker) copyDocuments(ctx context.Context, collection string, descriptors []models.FieldDescriptor) error {
	buffer := make([]map[string]any, 0, w.batchSize)
	batches := 0

	err := w.source.Iterate(ctx, collection, w.documentCap, func(doc map[string]any) error {
		coerced, err := coerce.Document(doc)
		if err != nil {
			return fmt.Errorf("coerce document in %s: %w", collection, err)
		}
		buffer = append(buffer, coerced)
		if len(buffer) >= w.batchSize {
			if err := w.loader.AppendBatch(ctx, collection, descriptors, buffer); err != nil {
				return err
			}
			batches++
			buffer = buffer[:0]
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(buffer) > 0 {
		if err := w.loader.AppendBatch(ctx, collection, descriptors, buffer); err != nil {
			return err
		}
		batches++
	}
	w.logger.Zap().Debug("collection copied",
		zap.String("collection", collection),
		zap.Int("batches", batches))
	return nil
}

func (w *Worker) transition(collection string, state syncState) {
	w.logger.Zap().Debug("state transition",
		zap.String("collection", collection),
		zap.String("state", string(state)))
}
