package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

func TestCoordinatorSeedsRefreshesAndAssigns(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{collections: map[string][]map[string]any{
		"patients": {{"_id": "a"}, {"_id": "b"}, {"_id": "c"}},
		"visits":   {{"_id": "v"}},
		"wards":    {},
	}}
	ledger := newFakeLedger()

	c := NewCoordinator(source, ledger, 2, nil)
	require.NoError(t, c.Run(ctx))

	require.Len(t, ledger.entries, 3)
	assert.Equal(t, int64(3), ledger.entries["patients"].NumRows)
	assert.Equal(t, int64(1), ledger.entries["visits"].NumRows)
	assert.Equal(t, int64(0), ledger.entries["wards"].NumRows)
	for name, entry := range ledger.entries {
		assert.NotEqual(t, models.WorkerUnassigned, entry.Worker, "collection %s left unassigned", name)
	}
}

func TestCoordinatorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{collections: map[string][]map[string]any{
		"patients": {{"_id": "a"}},
	}}
	ledger := newFakeLedger()

	c := NewCoordinator(source, ledger, 1, nil)
	require.NoError(t, c.Run(ctx))
	ledger.entries["patients"].Status = models.StatusSuccess

	require.NoError(t, c.Run(ctx))
	assert.Len(t, ledger.entries, 1)
	// a second pass must not reset worker-owned fields
	assert.Equal(t, models.StatusSuccess, ledger.entries["patients"].Status)
}

func TestCoordinatorKeepsVanishedCollections(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{collections: map[string][]map[string]any{
		"patients": {{"_id": "a"}},
	}}
	ledger := newFakeLedger()
	// tracked from an earlier cycle, no longer in the source
	require.NoError(t, ledger.EnsureEntry(ctx, "legacy_notes"))

	c := NewCoordinator(source, ledger, 1, nil)
	require.NoError(t, c.Run(ctx))

	require.Contains(t, ledger.entries, "legacy_notes")
	assert.Equal(t, "0", ledger.entries["legacy_notes"].Worker, "vanished collections stay in rotation")
}

func TestCoordinatorCountFailureIsFatal(t *testing.T) {
	source := &fakeSource{
		collections: map[string][]map[string]any{"patients": {{"_id": "a"}}},
		countErr:    errors.New("connection reset"),
	}
	ledger := newFakeLedger()

	c := NewCoordinator(source, ledger, 1, nil)
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count patients")
	for _, entry := range ledger.entries {
		assert.Equal(t, models.WorkerUnassigned, entry.Worker, "assignment must not run after a failed refresh")
	}
}

func TestCoordinatorLedgerFailureIsFatal(t *testing.T) {
	source := &fakeSource{collections: map[string][]map[string]any{"patients": nil}}
	ledger := newFakeLedger()
	ledger.failOps = true

	c := NewCoordinator(source, ledger, 1, nil)
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrLedger))
}
