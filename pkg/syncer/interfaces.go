// Package syncer orchestrates sync cycles: the coordinator seeds and
// balances the ledger, workers replicate their shard's collections
// into the staging store and onward into the warehouse.
package syncer

import (
	"context"

	"github.com/carewell-health/datahub-sync/pkg/models"
)

// SourceStore is the slice of the document store the cycle needs.
type SourceStore interface {
	CollectionNames(ctx context.Context) ([]string, error)
	EstimatedCount(ctx context.Context, collection string) (int64, error)
	FieldNames(ctx context.Context, collection string) ([]string, error)
	SampleWithField(ctx context.Context, collection, field string) (map[string]any, error)
	Iterate(ctx context.Context, collection string, limit int64, fn func(doc map[string]any) error) error
}

// Ledger is the control-table contract.
type Ledger interface {
	EnsureEntry(ctx context.Context, collection string) error
	AssignWorkers(ctx context.Context, numWorkers int) error
	RefreshCardinality(ctx context.Context, collection string, n int64) error
	FetchShard(ctx context.Context, workerID int, freq models.UpdateFreq) ([]string, error)
	Collections(ctx context.Context) ([]string, error)
	Mark(ctx context.Context, collection string, status models.SyncStatus) error
	Get(ctx context.Context, collection string) (*models.LedgerEntry, error)
}

// Loader is the staging-store contract.
type Loader interface {
	CreateStaging(ctx context.Context, collection string, descriptors []models.FieldDescriptor) error
	AppendBatch(ctx context.Context, collection string, descriptors []models.FieldDescriptor, rows []map[string]any) error
	Promote(ctx context.Context, collection string) error
	CountRows(ctx context.Context, collection string) (int64, error)
	LiveColumns(ctx context.Context, collection string) ([]models.FieldDescriptor, error)
}

// WarehousePromoter copies promoted tables into the warehouse.
type WarehousePromoter interface {
	Promote(ctx context.Context, table string) error
	CountRows(ctx context.Context, table string) (int64, error)
}
