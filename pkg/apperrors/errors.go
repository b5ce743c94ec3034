// Package apperrors defines the error taxonomy for the sync pipeline.
// Each variant maps to exactly one ledger outcome at the worker boundary;
// matching is done with errors.Is/errors.As against the sentinels here.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedSourceType marks a single-key "$..." wrapper the
	// coercion rules do not know about. Data-model bug, not recovered.
	ErrUnrecognizedSourceType = errors.New("unrecognized source type")

	// ErrUnencodableType marks a document value that cannot be coerced
	// to a SQL-safe scalar or JSON text.
	ErrUnencodableType = errors.New("unencodable type")

	// ErrSchemaDrift marks an append that hit a missing table or column.
	// Recovered exactly once per collection by forcing schema discovery.
	ErrSchemaDrift = errors.New("schema drift")

	// ErrLoader marks a rejected bulk-copy stream. The staging table is
	// left in place for inspection.
	ErrLoader = errors.New("bulk copy rejected")

	// ErrRowCountMismatch marks a post-load count below the expected
	// source cardinality.
	ErrRowCountMismatch = errors.New("row count mismatch")

	// ErrWarehouseJob marks a warehouse query job that finished with an
	// error.
	ErrWarehouseJob = errors.New("warehouse job failed")

	// ErrLedger marks an unreachable control database. Fatal for the
	// worker process: the outcome cannot be recorded.
	ErrLedger = errors.New("ledger unavailable")
)

// UnrecognizedSourceTypeError reports the unknown "$..." key.
type UnrecognizedSourceTypeError struct {
	Key string
}

func (e *UnrecognizedSourceTypeError) Error() string {
	return fmt.Sprintf("unrecognized source type %q", e.Key)
}

func (e *UnrecognizedSourceTypeError) Unwrap() error { return ErrUnrecognizedSourceType }

// UnencodableTypeError reports the Go type that defeated coercion.
type UnencodableTypeError struct {
	Value any
}

func (e *UnencodableTypeError) Error() string {
	return fmt.Sprintf("unencodable type %T", e.Value)
}

func (e *UnencodableTypeError) Unwrap() error { return ErrUnencodableType }

// SchemaDriftError wraps the driver error (undefined_table or
// undefined_column) that revealed the drift.
type SchemaDriftError struct {
	Collection string
	Err        error
}

func (e *SchemaDriftError) Error() string {
	return fmt.Sprintf("schema drift on %s: %v", e.Collection, e.Err)
}

func (e *SchemaDriftError) Unwrap() error { return ErrSchemaDrift }

// LoaderError wraps a bulk-copy failure that is not schema drift.
type LoaderError struct {
	Collection string
	Err        error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("bulk copy into %s rejected: %v", e.Collection, e.Err)
}

func (e *LoaderError) Unwrap() error { return ErrLoader }

// RowCountMismatchError reports a post-load verification failure.
type RowCountMismatchError struct {
	Table    string
	Expected int64
	Actual   int64
}

func (e *RowCountMismatchError) Error() string {
	return fmt.Sprintf("row count mismatch on %s: expected >= %d, got %d", e.Table, e.Expected, e.Actual)
}

func (e *RowCountMismatchError) Unwrap() error { return ErrRowCountMismatch }

// WarehouseJobError reports a failed warehouse job.
type WarehouseJobError struct {
	Table string
	Err   error
}

func (e *WarehouseJobError) Error() string {
	return fmt.Sprintf("warehouse job for %s: %v", e.Table, e.Err)
}

func (e *WarehouseJobError) Unwrap() error { return ErrWarehouseJob }

// LedgerError wraps a control-database failure.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return ErrLedger }
