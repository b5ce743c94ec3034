package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

// fakeSource serves documents from memory in insertion order.
type fakeSource struct {
	collections map[string][]map[string]any
	countErr    error
}

func (f *fakeSource) CollectionNames(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeSource) EstimatedCount(_ context.Context, collection string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.collections[collection])), nil
}

func (f *fakeSource) FieldNames(_ context.Context, collection string) ([]string, error) {
	seen := map[string]bool{}
	for _, doc := range f.collections[collection] {
		for name := range doc {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeSource) SampleWithField(_ context.Context, collection, field string) (map[string]any, error) {
	for _, doc := range f.collections[collection] {
		if _, ok := doc[field]; ok {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("no document with field %s", field)
}

func (f *fakeSource) Iterate(_ context.Context, collection string, limit int64, fn func(doc map[string]any) error) error {
	for i, doc := range f.collections[collection] {
		if limit > 0 && int64(i) >= limit {
			return nil
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// fakeLedger keeps entries in memory.
type fakeLedger struct {
	entries map[string]*models.LedgerEntry
	marks   []string // "collection:status" in call order
	failOps bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[string]*models.LedgerEntry{}}
}

func (f *fakeLedger) ledgerErr(op string) error {
	return &apperrors.LedgerError{Op: op, Err: fmt.Errorf("control db down")}
}

func (f *fakeLedger) EnsureEntry(_ context.Context, collection string) error {
	if f.failOps {
		return f.ledgerErr("ensure entry")
	}
	if _, ok := f.entries[collection]; !ok {
		f.entries[collection] = &models.LedgerEntry{
			CollectionName: collection,
			LastUpdate:     time.Unix(0, 0),
			UpdateFreq:     models.FreqDaily,
			Status:         models.StatusNone,
			Worker:         models.WorkerUnassigned,
		}
	}
	return nil
}

func (f *fakeLedger) AssignWorkers(_ context.Context, numWorkers int) error {
	if f.failOps {
		return f.ledgerErr("assign workers")
	}
	names := f.sortedByRows()
	for i, name := range names {
		f.entries[name].Worker = fmt.Sprintf("%d", i%numWorkers)
	}
	return nil
}

func (f *fakeLedger) RefreshCardinality(_ context.Context, collection string, n int64) error {
	if f.failOps {
		return f.ledgerErr("refresh cardinality")
	}
	f.entries[collection].NumRows = n
	return nil
}

func (f *fakeLedger) FetchShard(_ context.Context, workerID int, freq models.UpdateFreq) ([]string, error) {
	if f.failOps {
		return nil, f.ledgerErr("fetch shard")
	}
	var out []string
	for _, name := range f.sortedByRows() {
		e := f.entries[name]
		if e.Worker == fmt.Sprintf("%d", workerID) && e.UpdateFreq == freq {
			out = append(out, name)
		}
	}
	return out, nil
}

func (f *fakeLedger) Collections(_ context.Context) ([]string, error) {
	if f.failOps {
		return nil, f.ledgerErr("list collections")
	}
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeLedger) Mark(_ context.Context, collection string, status models.SyncStatus) error {
	if f.failOps {
		return f.ledgerErr("mark")
	}
	f.entries[collection].Status = status
	f.entries[collection].LastUpdate = time.Now()
	f.marks = append(f.marks, collection+":"+string(status))
	return nil
}

func (f *fakeLedger) Get(_ context.Context, collection string) (*models.LedgerEntry, error) {
	if f.failOps {
		return nil, f.ledgerErr("get")
	}
	e, ok := f.entries[collection]
	if !ok {
		return nil, f.ledgerErr("get")
	}
	copied := *e
	return &copied, nil
}

func (f *fakeLedger) sortedByRows() []string {
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := f.entries[names[i]], f.entries[names[j]]
		if a.NumRows != b.NumRows {
			return a.NumRows < b.NumRows
		}
		return names[i] < names[j]
	})
	return names
}

// fakeLoader records staging activity in memory.
type fakeLoader struct {
	live         map[string][]map[string]any // promoted generations
	staged       map[string][]map[string]any
	liveColumns  map[string][]models.FieldDescriptor
	created      map[string][]models.FieldDescriptor
	batchCalls   int
	countResult  map[string]int64 // override live count when set
	appendErrs   []error          // popped per AppendBatch call
	promoteCalls int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		live:        map[string][]map[string]any{},
		staged:      map[string][]map[string]any{},
		liveColumns: map[string][]models.FieldDescriptor{},
		created:     map[string][]models.FieldDescriptor{},
		countResult: map[string]int64{},
	}
}

func (f *fakeLoader) CreateStaging(_ context.Context, collection string, descriptors []models.FieldDescriptor) error {
	f.created[collection] = descriptors
	f.staged[collection] = nil
	return nil
}

func (f *fakeLoader) AppendBatch(_ context.Context, collection string, _ []models.FieldDescriptor, rows []map[string]any) error {
	if len(f.appendErrs) > 0 {
		err := f.appendErrs[0]
		f.appendErrs = f.appendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.batchCalls++
	f.staged[collection] = append(f.staged[collection], rows...)
	return nil
}

func (f *fakeLoader) Promote(_ context.Context, collection string) error {
	f.promoteCalls++
	f.live[collection] = f.staged[collection]
	f.liveColumns[collection] = f.created[collection]
	delete(f.staged, collection)
	return nil
}

func (f *fakeLoader) CountRows(_ context.Context, collection string) (int64, error) {
	if n, ok := f.countResult[collection]; ok {
		return n, nil
	}
	return int64(len(f.live[collection])), nil
}

func (f *fakeLoader) LiveColumns(_ context.Context, collection string) ([]models.FieldDescriptor, error) {
	return f.liveColumns[collection], nil
}

// fakeWarehouse mirrors the loader's live tables on Promote.
type fakeWarehouse struct {
	loader       *fakeLoader
	tables       map[string]int64
	promoteCalls int
	promoteErr   error
}

func newFakeWarehouse(loader *fakeLoader) *fakeWarehouse {
	return &fakeWarehouse{loader: loader, tables: map[string]int64{}}
}

func (f *fakeWarehouse) Promote(_ context.Context, table string) error {
	f.promoteCalls++
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.tables[table] = int64(len(f.loader.live[table]))
	return nil
}

func (f *fakeWarehouse) CountRows(_ context.Context, table string) (int64, error) {
	return f.tables[table], nil
}
