// Package staging loads coerced documents into the relational staging
// store and promotes staging tables over live tables.
package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

const stagingPrefix = "__"

// Postgres error codes that signal schema drift during an append.
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

// Loader writes staging tables for one worker. A staging table has
// exactly one writer during a run; no locking is needed here.
type Loader struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Loader over the staging-store pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{pool: pool, logger: logger}
}

// StagingTable returns the transient table name for a collection.
func StagingTable(collection string) string {
	return stagingPrefix + collection
}

// CreateStaging drops any leftover staging table for the collection and
// creates a fresh one, one nullable column per descriptor. No indexes,
// no constraints: the table lives only until promotion.
func (l *Loader) CreateStaging(ctx context.Context, collection string, descriptors []models.FieldDescriptor) error {
	table := pgx.Identifier{StagingTable(collection)}.Sanitize()

	if _, err := l.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop staging table for %s: %w", collection, err)
	}

	cols := make([]string, len(descriptors))
	for i, d := range descriptors {
		cols[i] = pgx.Identifier{d.Name}.Sanitize() + " " + d.Kind.SQLType()
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))
	if _, err := l.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create staging table for %s: %w", collection, err)
	}

	l.logger.Info("created staging table",
		zap.String("collection", collection),
		zap.Int("columns", len(descriptors)))
	return nil
}

// AppendBatch streams one batch of coerced rows into the staging table
// with a single bulk-copy command. Rows are aligned to descriptor
// order; missing and empty values load as NULL, missing json cells as
// a literal empty array.
func (l *Loader) AppendBatch(ctx context.Context, collection string, descriptors []models.FieldDescriptor, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	var buf strings.Builder
	for _, row := range rows {
		line, err := renderRow(descriptors, row)
		if err != nil {
			return fmt.Errorf("render row for %s: %w", collection, err)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return &apperrors.LoaderError{Collection: collection, Err: err}
	}
	defer conn.Release()

	_, err = conn.Conn().PgConn().CopyFrom(ctx, strings.NewReader(buf.String()), copySQL(collection, descriptors))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == codeUndefinedTable || pgErr.Code == codeUndefinedColumn) {
			return &apperrors.SchemaDriftError{Collection: collection, Err: err}
		}
		return &apperrors.LoaderError{Collection: collection, Err: err}
	}
	return nil
}

// Promote atomically replaces the live table with the staging table.
// Readers see either the prior generation or the new one, never a
// partial table.
func (l *Loader) Promote(ctx context.Context, collection string) error {
	live := pgx.Identifier{collection}.Sanitize()
	stage := pgx.Identifier{StagingTable(collection)}.Sanitize()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin promote of %s: %w", collection, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+live); err != nil {
		return fmt.Errorf("drop live table %s: %w", collection, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", stage, live)); err != nil {
		return fmt.Errorf("rename staging table over %s: %w", collection, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit promote of %s: %w", collection, err)
	}

	l.logger.Info("promoted staging table", zap.String("collection", collection))
	return nil
}

// CountRows counts the live table.
func (l *Loader) CountRows(ctx context.Context, collection string) (int64, error) {
	var n int64
	query := "SELECT count(*) FROM " + pgx.Identifier{collection}.Sanitize()
	if err := l.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count live table %s: %w", collection, err)
	}
	return n, nil
}

// LiveColumns reads the live table's columns back as descriptors, in
// column order. Used when a run reuses the previous schema instead of
// re-discovering.
func (l *Loader) LiveColumns(ctx context.Context, collection string) ([]models.FieldDescriptor, error) {
	const query = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := l.pool.Query(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("read live columns of %s: %w", collection, err)
	}
	defer rows.Close()

	var descriptors []models.FieldDescriptor
	for rows.Next() {
		var name, sqlType string
		if err := rows.Scan(&name, &sqlType); err != nil {
			return nil, fmt.Errorf("scan live column of %s: %w", collection, err)
		}
		descriptors = append(descriptors, models.FieldDescriptor{
			Name: name,
			Kind: models.KindForSQLType(sqlType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read live columns of %s: %w", collection, err)
	}
	return descriptors, nil
}
