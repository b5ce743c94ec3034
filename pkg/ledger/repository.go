// Package ledger manages the control table tracking per-collection
// sync state. The coordinator owns existence, worker assignment, and
// row counts; workers own status and last_update. Writes are single-row
// updates relying on the control database's row-level locking.
package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

// sentinelPast seeds last_update for a collection that has never
// synced, so staleness queries need no NULL handling.
const sentinelPast = "1970-01-01 00:00:00"

// Repository provides access to one environment's ledger table.
type Repository struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

// New creates a Repository over the given control table, e.g.
// "sync_table_dev".
func New(pool *pgxpool.Pool, table string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, table: table, logger: logger}
}

func (r *Repository) ident() string {
	return pgx.Identifier{r.table}.Sanitize()
}

// EnsureEntry inserts a ledger row for a newly discovered collection.
// Existing rows are untouched, so the coordinator is idempotent.
func (r *Repository) EnsureEntry(ctx context.Context, collection string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (collection_name, last_update, update_freq, status, worker, num_rows)
		VALUES ($1, $2, $3, $4, $5, '0')
		ON CONFLICT (collection_name) DO NOTHING
	`, r.ident())
	_, err := r.pool.Exec(ctx, query,
		collection, sentinelPast, string(models.FreqDaily), string(models.StatusNone), models.WorkerUnassigned)
	if err != nil {
		return &apperrors.LedgerError{Op: "ensure entry", Err: err}
	}
	return nil
}

// AssignWorkers distributes collections across shards. Entries are
// ordered by row count ascending and dealt round-robin, which keeps
// each shard's total row count approximately balanced.
func (r *Repository) AssignWorkers(ctx context.Context, numWorkers int) error {
	if numWorkers < 1 {
		return &apperrors.LedgerError{Op: "assign workers", Err: fmt.Errorf("num_workers must be positive, got %d", numWorkers)}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &apperrors.LedgerError{Op: "assign workers", Err: err}
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(
		`SELECT collection_name FROM %s ORDER BY num_rows::bigint ASC, collection_name ASC`,
		r.ident())
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return &apperrors.LedgerError{Op: "assign workers", Err: err}
	}
	collections, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return &apperrors.LedgerError{Op: "assign workers", Err: err}
	}

	update := fmt.Sprintf(`UPDATE %s SET worker = $1 WHERE collection_name = $2`, r.ident())
	for i, collection := range collections {
		shard := strconv.Itoa(i % numWorkers)
		if _, err := tx.Exec(ctx, update, shard, collection); err != nil {
			return &apperrors.LedgerError{Op: "assign workers", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &apperrors.LedgerError{Op: "assign workers", Err: err}
	}

	r.logger.Info("assigned workers",
		zap.Int("collections", len(collections)),
		zap.Int("num_workers", numWorkers))
	return nil
}

// RefreshCardinality records the observed source row count.
func (r *Repository) RefreshCardinality(ctx context.Context, collection string, n int64) error {
	query := fmt.Sprintf(`UPDATE %s SET num_rows = $1 WHERE collection_name = $2`, r.ident())
	if _, err := r.pool.Exec(ctx, query, strconv.FormatInt(n, 10), collection); err != nil {
		return &apperrors.LedgerError{Op: "refresh cardinality", Err: err}
	}
	return nil
}

// FetchShard returns the collections assigned to a worker for a
// frequency lane, lightest first.
func (r *Repository) FetchShard(ctx context.Context, workerID int, freq models.UpdateFreq) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT collection_name FROM %s
		WHERE worker = $1 AND update_freq = $2
		ORDER BY num_rows::bigint ASC, collection_name ASC
	`, r.ident())
	rows, err := r.pool.Query(ctx, query, strconv.Itoa(workerID), string(freq))
	if err != nil {
		return nil, &apperrors.LedgerError{Op: "fetch shard", Err: err}
	}
	collections, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &apperrors.LedgerError{Op: "fetch shard", Err: err}
	}
	return collections, nil
}

// Collections returns every collection the ledger tracks, including
// ones that have since disappeared from the source.
func (r *Repository) Collections(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT collection_name FROM %s ORDER BY collection_name ASC`, r.ident())
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, &apperrors.LedgerError{Op: "list collections", Err: err}
	}
	collections, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &apperrors.LedgerError{Op: "list collections", Err: err}
	}
	return collections, nil
}

// Mark sets a collection's outcome and advances last_update.
func (r *Repository) Mark(ctx context.Context, collection string, status models.SyncStatus) error {
	query := fmt.Sprintf(
		`UPDATE %s SET status = $1, last_update = now() WHERE collection_name = $2`,
		r.ident())
	if _, err := r.pool.Exec(ctx, query, string(status), collection); err != nil {
		return &apperrors.LedgerError{Op: "mark", Err: err}
	}
	return nil
}

// Get reads one ledger entry.
func (r *Repository) Get(ctx context.Context, collection string) (*models.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT collection_name, last_update, update_freq, status, worker, num_rows
		FROM %s WHERE collection_name = $1
	`, r.ident())

	var entry models.LedgerEntry
	var freq, status, numRows string
	err := r.pool.QueryRow(ctx, query, collection).Scan(
		&entry.CollectionName, &entry.LastUpdate, &freq, &status, &entry.Worker, &numRows)
	if err != nil {
		return nil, &apperrors.LedgerError{Op: "get", Err: err}
	}

	entry.UpdateFreq = models.UpdateFreq(freq)
	entry.Status = models.SyncStatus(status)
	entry.NumRows, err = strconv.ParseInt(numRows, 10, 64)
	if err != nil {
		return nil, &apperrors.LedgerError{Op: "get", Err: fmt.Errorf("parse num_rows %q: %w", numRows, err)}
	}
	return &entry, nil
}
