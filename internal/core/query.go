package core

import (
	"context"
	"sort"
	"time"

	"floortrack/pkg/domain"
)

// QueryService answers the read-side questions of the floor UI and the sync
// transport from consistent snapshots of the store.
type QueryService struct {
	store PersistentStore
	nowFn func() time.Time
}

// NewQueryService constructs a query service over the supplied store.
func NewQueryService(store PersistentStore) *QueryService {
	return &QueryService{
		store: store,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// ActiveSessions returns sessions not yet clocked out, oldest first.
func (q *QueryService) ActiveSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, sess := range view.ListSessions() {
			if !sess.ClockedOut {
				out = append(out, sess)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, err
}

// CompletionsInRange returns completions whose start time falls within
// [from, to], both bounds inclusive, ordered by start time.
func (q *QueryService) CompletionsInRange(ctx context.Context, from, to time.Time) ([]Completion, error) {
	var out []Completion
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, c := range view.ListCompletions() {
			if c.StartTime.Before(from) || c.StartTime.After(to) {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, err
}

// CompletionsToday returns completions started since local midnight.
func (q *QueryService) CompletionsToday(ctx context.Context) ([]Completion, error) {
	now := q.nowFn()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return q.CompletionsInRange(ctx, midnight, now)
}

// BatchProgress reports produced vs expected units for a batch, clamped to
// [0, 100] and zero-safe when no target is set. An unknown batch reads as
// all-zero progress; read-side callers tolerate absent referents.
func (q *QueryService) BatchProgress(ctx context.Context, batchID string) (domain.Progress, error) {
	var progress domain.Progress
	err := q.store.View(ctx, func(view TransactionView) error {
		if b, ok := view.FindBatch(batchID); ok {
			progress = domain.BatchProgressOf(b)
		}
		return nil
	})
	return progress, err
}

// OpenBatches returns batches still accepting production.
func (q *QueryService) OpenBatches(ctx context.Context) ([]Batch, error) {
	var out []Batch
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, b := range view.ListBatches() {
			if b.Status == domain.BatchOpen || b.Status == domain.BatchInProgress {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, err
}

// TasksByProduct returns the tasks defined for a product.
func (q *QueryService) TasksByProduct(ctx context.Context, productID string) ([]Task, error) {
	var out []Task
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, t := range view.ListTasks() {
			if t.ProductID == productID {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// ActiveEmployees returns employees currently marked active.
func (q *QueryService) ActiveEmployees(ctx context.Context) ([]Employee, error) {
	var out []Employee
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, e := range view.ListEmployees() {
			if e.Active {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// ActiveProducts returns products currently marked active.
func (q *QueryService) ActiveProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, p := range view.ListProducts() {
			if p.Active {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// EmployeePerformance summarises one employee's output for a day.
type EmployeePerformance struct {
	TotalUnits        int          `json:"totalUnits"`
	TotalHours        float64      `json:"totalHours"`
	AverageEfficiency float64      `json:"averageEfficiency"`
	Completions       []Completion `json:"completions"`
}

// EmployeePerformanceToday aggregates today's completions for an employee:
// unit and hour totals plus the mean efficiency across completions.
func (q *QueryService) EmployeePerformanceToday(ctx context.Context, employeeID string) (EmployeePerformance, error) {
	completions, err := q.CompletionsToday(ctx)
	if err != nil {
		return EmployeePerformance{}, err
	}
	perf := EmployeePerformance{Completions: []Completion{}}
	for _, c := range completions {
		if c.EmployeeID != employeeID {
			continue
		}
		perf.Completions = append(perf.Completions, c)
		perf.TotalUnits += c.Quantity
		perf.TotalHours += float64(c.Duration) / float64(time.Hour.Milliseconds())
	}
	if n := len(perf.Completions); n > 0 {
		var sum float64
		for _, c := range perf.Completions {
			sum += c.Efficiency
		}
		perf.AverageEfficiency = sum / float64(n)
	}
	return perf, nil
}

// PendingSyncItems returns outbox entries awaiting delivery (pending or
// failed), ordered by Lamport timestamp with a device-ID tie-break.
func (q *QueryService) PendingSyncItems(ctx context.Context) ([]SyncQueueItem, error) {
	var out []SyncQueueItem
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, item := range view.ListSyncQueueItems() {
			if item.Status == domain.QueuePending || item.Status == domain.QueueFailed {
				out = append(out, item)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return domain.CompareSyncOrder(
			out[i].LamportTimestamp, out[i].DeviceID,
			out[j].LamportTimestamp, out[j].DeviceID,
		) < 0
	})
	return out, err
}

// AuditTrail returns the audit entries recorded for one entity, newest
// first.
func (q *QueryService) AuditTrail(ctx context.Context, entity domain.EntityType, entityID string) ([]AuditEvent, error) {
	var out []AuditEvent
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, e := range view.ListAuditEvents() {
			if e.EntityType == entity && e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, err
}

// UnacknowledgedAlerts returns alerts awaiting acknowledgement, newest
// first.
func (q *QueryService) UnacknowledgedAlerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, a := range view.ListAlerts() {
			if !a.Acknowledged {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, err
}

// ActiveAndonCalls returns andon calls not yet resolved, oldest first.
func (q *QueryService) ActiveAndonCalls(ctx context.Context) ([]AndonEvent, error) {
	var out []AndonEvent
	err := q.store.View(ctx, func(view TransactionView) error {
		for _, a := range view.ListAndonEvents() {
			if a.Status != domain.AndonResolved {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, err
}
