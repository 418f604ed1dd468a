package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"floortrack/internal/infra/persistence/memory"
	"floortrack/pkg/domain"
)

func seedStore(t *testing.T, fn func(tx Transaction) error) *memory.Store {
	t.Helper()
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), fn)
	require.NoError(t, err)
	return store
}

func TestActiveSessionsOldestFirst(t *testing.T) {
	base := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	store := seedStore(t, func(tx Transaction) error {
		for _, s := range []Session{
			{ID: "late", EmployeeID: "emp-2", StartTime: base.Add(2 * time.Hour)},
			{ID: "early", EmployeeID: "emp-1", StartTime: base},
			{ID: "done", EmployeeID: "emp-3", StartTime: base.Add(time.Hour), ClockedOut: true},
		} {
			if _, err := tx.CreateSession(s); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := NewQueryService(store).ActiveSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "early", got[0].ID)
	require.Equal(t, "late", got[1].ID)
}

func TestCompletionsInRangeInclusiveBounds(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	to := from.Add(4 * time.Hour)
	store := seedStore(t, func(tx Transaction) error {
		for _, c := range []Completion{
			{ID: "at-from", StartTime: from},
			{ID: "inside", StartTime: from.Add(time.Hour)},
			{ID: "at-to", StartTime: to},
			{ID: "before", StartTime: from.Add(-time.Second)},
			{ID: "after", StartTime: to.Add(time.Second)},
		} {
			if _, err := tx.CreateCompletion(c); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := NewQueryService(store).CompletionsInRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "at-from", got[0].ID)
	require.Equal(t, "inside", got[1].ID)
	require.Equal(t, "at-to", got[2].ID)
}

func TestBatchProgress(t *testing.T) {
	store := seedStore(t, func(tx Transaction) error {
		_, err := tx.CreateBatch(Batch{ID: "batch-1", ExpectedUnits: 200, ActualUnits: 50})
		return err
	})
	queries := NewQueryService(store)

	progress, err := queries.BatchProgress(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Equal(t, 25.0, progress.Percentage)

	// Unknown batches read as all-zero progress, not an error.
	progress, err = queries.BatchProgress(context.Background(), "missing")
	require.NoError(t, err)
	require.Equal(t, domain.Progress{}, progress)
}

func TestOpenBatchesExcludesFinished(t *testing.T) {
	store := seedStore(t, func(tx Transaction) error {
		for _, b := range []Batch{
			{ID: "open", Status: domain.BatchOpen},
			{ID: "running", Status: domain.BatchInProgress},
			{ID: "closed", Status: domain.BatchClosed},
			{ID: "held", Status: domain.BatchOnHold},
		} {
			if _, err := tx.CreateBatch(b); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := NewQueryService(store).OpenBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestEmployeePerformanceToday(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	morning := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store := seedStore(t, func(tx Transaction) error {
		for _, c := range []Completion{
			{ID: "c1", EmployeeID: "emp-1", Quantity: 50, Efficiency: 125, StartTime: morning, EndTime: morning.Add(30 * time.Minute)},
			{ID: "c2", EmployeeID: "emp-1", Quantity: 50, Efficiency: 75, StartTime: morning.Add(time.Hour), EndTime: morning.Add(90 * time.Minute)},
			{ID: "other", EmployeeID: "emp-2", Quantity: 99, Efficiency: 10, StartTime: morning},
			{ID: "yesterday", EmployeeID: "emp-1", Quantity: 40, Efficiency: 200, StartTime: morning.AddDate(0, 0, -1), EndTime: morning.AddDate(0, 0, -1).Add(time.Hour)},
		} {
			if _, err := tx.CreateCompletion(c); err != nil {
				return err
			}
		}
		return nil
	})
	queries := NewQueryService(store)
	queries.nowFn = func() time.Time { return now }

	perf, err := queries.EmployeePerformanceToday(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Equal(t, 100, perf.TotalUnits)
	require.InDelta(t, 1.0, perf.TotalHours, 1e-9)
	require.InDelta(t, 100.0, perf.AverageEfficiency, 1e-9)
	require.Len(t, perf.Completions, 2)
}

func TestPendingSyncItemsLamportOrder(t *testing.T) {
	store := seedStore(t, func(tx Transaction) error {
		for _, item := range []SyncQueueItem{
			{ID: "q-late", LamportTimestamp: 9, DeviceID: "dev-a", Status: domain.QueuePending},
			{ID: "q-tie-b", LamportTimestamp: 3, DeviceID: "dev-b", Status: domain.QueueFailed},
			{ID: "q-tie-a", LamportTimestamp: 3, DeviceID: "dev-a", Status: domain.QueuePending},
			{ID: "q-done", LamportTimestamp: 1, DeviceID: "dev-a", Status: domain.QueueSuccess},
			{ID: "q-inflight", LamportTimestamp: 2, DeviceID: "dev-a", Status: domain.QueueSyncing},
		} {
			if _, err := tx.CreateSyncQueueItem(item); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := NewQueryService(store).PendingSyncItems(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3, "only pending and failed items are deliverable")
	require.Equal(t, "q-tie-a", got[0].ID)
	require.Equal(t, "q-tie-b", got[1].ID)
	require.Equal(t, "q-late", got[2].ID)
}

func TestAuditTrailNewestFirst(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store := seedStore(t, func(tx Transaction) error {
		for _, e := range []AuditEvent{
			{ID: "a1", EntityType: domain.EntityBatch, EntityID: "batch-1", Timestamp: base},
			{ID: "a2", EntityType: domain.EntityBatch, EntityID: "batch-1", Timestamp: base.Add(time.Hour)},
			{ID: "other", EntityType: domain.EntityBatch, EntityID: "batch-2", Timestamp: base},
		} {
			if _, err := tx.CreateAuditEvent(e); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := NewQueryService(store).AuditTrail(context.Background(), domain.EntityBatch, "batch-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a2", got[0].ID)
}

func TestUnacknowledgedAlertsAndActiveAndons(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store := seedStore(t, func(tx Transaction) error {
		if _, err := tx.CreateAlert(Alert{ID: "open", Title: "Low efficiency", Timestamp: base}); err != nil {
			return err
		}
		if _, err := tx.CreateAlert(Alert{ID: "seen", Acknowledged: true, Timestamp: base}); err != nil {
			return err
		}
		if _, err := tx.CreateAndonEvent(AndonEvent{ID: "active", Workstation: "line-2", Timestamp: base}); err != nil {
			return err
		}
		_, err := tx.CreateAndonEvent(AndonEvent{ID: "resolved", Status: domain.AndonResolved, Timestamp: base})
		return err
	})
	queries := NewQueryService(store)
	ctx := context.Background()

	alerts, err := queries.UnacknowledgedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "open", alerts[0].ID)

	andons, err := queries.ActiveAndonCalls(ctx)
	require.NoError(t, err)
	require.Len(t, andons, 1)
	require.Equal(t, "active", andons[0].ID)
}

func TestActiveEmployeesAndProducts(t *testing.T) {
	store := seedStore(t, func(tx Transaction) error {
		if _, err := tx.CreateEmployee(Employee{ID: "e1", Name: "Dana", Active: true}); err != nil {
			return err
		}
		if _, err := tx.CreateEmployee(Employee{ID: "e2", Name: "Ari", Active: false}); err != nil {
			return err
		}
		if _, err := tx.CreateProduct(Product{ID: "p1", Name: "Pod X", Active: true}); err != nil {
			return err
		}
		if _, err := tx.CreateTask(Task{ID: "t1", Name: "Fill", Quota: 80, ProductID: "p1"}); err != nil {
			return err
		}
		_, err := tx.CreateTask(Task{ID: "t2", Name: "Cap", Quota: 90, ProductID: "p-other"})
		return err
	})
	queries := NewQueryService(store)
	ctx := context.Background()

	employees, err := queries.ActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	require.Equal(t, "Dana", employees[0].Name)

	products, err := queries.ActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)

	tasks, err := queries.TasksByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Fill", tasks[0].Name)
}
