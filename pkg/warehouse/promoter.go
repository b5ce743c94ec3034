// Package warehouse copies promoted staging tables into the analytics
// warehouse via federated queries.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
)

// Promoter executes the promote template against the warehouse and
// verifies the result.
type Promoter struct {
	client       *bigquery.Client
	bqDataset    string
	pgDataset    string
	pollInterval time.Duration
	logger       *zap.Logger
}

// New creates a Promoter. bqDataset is the mirror dataset
// (raw_<env>_datahub_mongo); pgDataset is the warehouse's connection
// resource for the staging store.
func New(ctx context.Context, projectID, bqDataset, pgDataset string, pollInterval time.Duration, logger *zap.Logger) (*Promoter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create warehouse client: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoter{
		client:       client,
		bqDataset:    bqDataset,
		pgDataset:    pgDataset,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

// Close releases the warehouse client.
func (p *Promoter) Close() error {
	return p.client.Close()
}

// Promote rewrites the warehouse mirror of one table from the staging
// store. The rendered statement replaces the destination table
// wholesale, so readers never see a partially copied mirror.
func (p *Promoter) Promote(ctx context.Context, table string) error {
	query, err := renderTemplate(promoteTemplate, map[string]string{
		"bq_dataset": p.bqDataset,
		"pg_dataset": p.pgDataset,
		"table":      table,
	})
	if err != nil {
		return fmt.Errorf("render promote template: %w", err)
	}

	job, err := p.client.Query(query).Run(ctx)
	if err != nil {
		return &apperrors.WarehouseJobError{Table: table, Err: err}
	}
	p.logger.Info("warehouse job submitted",
		zap.String("table", table),
		zap.String("job_id", job.ID()))

	if err := p.waitForJob(ctx, job); err != nil {
		return &apperrors.WarehouseJobError{Table: table, Err: err}
	}
	return nil
}

// waitForJob polls job state at a fixed interval until the job leaves
// the running state, then surfaces any job-level error.
func (p *Promoter) waitForJob(ctx context.Context, job *bigquery.Job) error {
	for {
		status, err := job.Status(ctx)
		if err != nil {
			return fmt.Errorf("poll job %s: %w", job.ID(), err)
		}
		if status.Done() {
			if err := status.Err(); err != nil {
				return fmt.Errorf("job %s: %w", job.ID(), err)
			}
			return nil
		}
		select {
		case <-time.After(p.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CountRows counts the warehouse mirror of a table.
func (p *Promoter) CountRows(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM `%s.%s`", p.bqDataset, table)
	it, err := p.client.Query(query).Read(ctx)
	if err != nil {
		return 0, &apperrors.WarehouseJobError{Table: table, Err: err}
	}

	var row []bigquery.Value
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, &apperrors.WarehouseJobError{Table: table, Err: err}
	}
	if len(row) == 0 {
		return 0, &apperrors.WarehouseJobError{Table: table, Err: fmt.Errorf("count query returned no rows")}
	}
	n, ok := row[0].(int64)
	if !ok {
		return 0, &apperrors.WarehouseJobError{Table: table, Err: fmt.Errorf("unexpected count type %T", row[0])}
	}
	return n, nil
}
