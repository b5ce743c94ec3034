package models

import "time"

// SyncStatus is the externally visible outcome of a collection's sync.
type SyncStatus string

const (
	StatusNone    SyncStatus = "none"
	StatusSuccess SyncStatus = "success"
	StatusFailure SyncStatus = "failure"
)

// UpdateFreq is the sync lane a collection belongs to. Only the daily
// lane is populated today; the weekly lane is kept in the schema for
// collections that may move off the daily cadence.
type UpdateFreq string

const (
	FreqDaily  UpdateFreq = "daily"
	FreqWeekly UpdateFreq = "weekly"
)

// WorkerUnassigned is the worker value of a ledger entry no shard has
// claimed yet.
const WorkerUnassigned = "none"

// LedgerEntry is one row of the control table: the sync state of one
// source collection. The coordinator owns worker and num_rows; the
// worker owns status and last_update.
type LedgerEntry struct {
	CollectionName string
	LastUpdate     time.Time
	UpdateFreq     UpdateFreq
	Status         SyncStatus
	Worker         string
	NumRows        int64
}
