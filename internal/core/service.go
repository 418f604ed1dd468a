package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"floortrack/pkg/domain"
)

// ErrOpenSession rejects a clock-in while the employee already has an open
// session.
var ErrOpenSession = errors.New("employee already has an open session")

// ValidationError reports a rejected write with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Service exposes the transactional operations of the production tracker and
// fans committed changes out to the audit trail and sync outbox.
type Service struct {
	store      PersistentStore
	dispatcher *Dispatcher
	log        *zap.Logger
	metrics    MetricsRecorder
	nowFn      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetricsRecorder sets the metrics sink for operation outcomes.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithDetachedHooks controls whether change fan-out runs on its own
// goroutine. Tests disable it to assert on side effects deterministically.
func WithDetachedHooks(detached bool) ServiceOption {
	return func(s *Service) {
		s.dispatcher = NewDispatcher(s.store, s.log, detached)
	}
}

// NewService constructs a service backed by the supplied store. Hooks run
// detached by default.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		log:     zap.NewNop(),
		metrics: NoopMetricsRecorder{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDispatcher(store, s.log, true)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Dispatcher returns the hook dispatcher, letting callers drain detached
// work before shutdown.
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// run executes fn transactionally, observes the outcome, and fans out the
// committed changes.
func (s *Service) run(ctx context.Context, operation, actor string, fn func(tx Transaction) error) error {
	start := s.nowFn()
	changes, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, operation, err == nil, s.nowFn().Sub(start))
	if err != nil {
		return err
	}
	s.dispatcher.Dispatch(actor, changes)
	return nil
}

// CreateEmployee persists a new employee.
func (s *Service) CreateEmployee(ctx context.Context, employee Employee) (Employee, error) {
	var created Employee
	err := s.run(ctx, "create_employee", "", func(tx Transaction) error {
		var err error
		created, err = tx.CreateEmployee(employee)
		return err
	})
	return created, err
}

// UpdateEmployee mutates an employee using the provided mutator.
func (s *Service) UpdateEmployee(ctx context.Context, id string, mutator func(*Employee) error) (Employee, error) {
	var updated Employee
	err := s.run(ctx, "update_employee", "", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateEmployee(id, mutator)
		return err
	})
	return updated, err
}

// DeactivateEmployee marks an employee inactive rather than deleting the
// history hanging off their record.
func (s *Service) DeactivateEmployee(ctx context.Context, id string) (Employee, error) {
	return s.UpdateEmployee(ctx, id, func(e *Employee) error {
		e.Active = false
		return nil
	})
}

// DeleteEmployee removes an employee record.
func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	return s.run(ctx, "delete_employee", "", func(tx Transaction) error {
		return tx.DeleteEmployee(id)
	})
}

// CreateProduct persists a new product.
func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, error) {
	var created Product
	err := s.run(ctx, "create_product", "", func(tx Transaction) error {
		var err error
		created, err = tx.CreateProduct(product)
		return err
	})
	return created, err
}

// UpdateProduct mutates a product using the provided mutator.
func (s *Service) UpdateProduct(ctx context.Context, id string, mutator func(*Product) error) (Product, error) {
	var updated Product
	err := s.run(ctx, "update_product", "", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProduct(id, mutator)
		return err
	})
	return updated, err
}

// CreateTask persists a new task. The quota must be positive; it is the
// denominator of every efficiency figure derived later.
func (s *Service) CreateTask(ctx context.Context, task Task) (Task, error) {
	if task.Quota <= 0 {
		return Task{}, ValidationError{Field: "quota", Reason: "must be positive"}
	}
	var created Task
	err := s.run(ctx, "create_task", "", func(tx Transaction) error {
		var err error
		created, err = tx.CreateTask(task)
		return err
	})
	return created, err
}

// UpdateTask mutates a task using the provided mutator.
func (s *Service) UpdateTask(ctx context.Context, id string, mutator func(*Task) error) (Task, error) {
	var updated Task
	err := s.run(ctx, "update_task", "", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateTask(id, func(t *Task) error {
			if err := mutator(t); err != nil {
				return err
			}
			if t.Quota <= 0 {
				return ValidationError{Field: "quota", Reason: "must be positive"}
			}
			return nil
		})
		return err
	})
	return updated, err
}

// CreateBatch persists a new production batch. The actor lands on the audit
// trail.
func (s *Service) CreateBatch(ctx context.Context, actor string, batch Batch) (Batch, error) {
	var created Batch
	err := s.run(ctx, "create_batch", actor, func(tx Transaction) error {
		var err error
		created, err = tx.CreateBatch(batch)
		return err
	})
	return created, err
}

// UpdateBatch mutates a batch using the provided mutator.
func (s *Service) UpdateBatch(ctx context.Context, actor, id string, mutator func(*Batch) error) (Batch, error) {
	var updated Batch
	err := s.run(ctx, "update_batch", actor, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateBatch(id, mutator)
		return err
	})
	return updated, err
}

// CloseBatch transitions a batch to Closed and stamps the close time.
func (s *Service) CloseBatch(ctx context.Context, actor, id string) (Batch, error) {
	var closed Batch
	err := s.run(ctx, "close_batch", actor, func(tx Transaction) error {
		var err error
		closed, err = tx.UpdateBatch(id, func(b *Batch) error {
			now := s.nowFn()
			b.Status = domain.BatchClosed
			b.Closed = &now
			return nil
		})
		return err
	})
	return closed, err
}

// DeleteBatch removes a batch record.
func (s *Service) DeleteBatch(ctx context.Context, actor, id string) error {
	return s.run(ctx, "delete_batch", actor, func(tx Transaction) error {
		return tx.DeleteBatch(id)
	})
}

// StartSession clocks an employee in. An employee can hold at most one open
// session at a time.
func (s *Service) StartSession(ctx context.Context, session Session) (Session, error) {
	var created Session
	err := s.run(ctx, "start_session", session.EmployeeID, func(tx Transaction) error {
		for _, open := range tx.Snapshot().ListSessions() {
			if open.EmployeeID == session.EmployeeID && !open.ClockedOut {
				return fmt.Errorf("%w: session %s", ErrOpenSession, open.ID)
			}
		}
		var err error
		created, err = tx.CreateSession(session)
		return err
	})
	return created, err
}

// EndSession clocks a session out at the given time (now when zero).
func (s *Service) EndSession(ctx context.Context, id string, endTime time.Time) (Session, error) {
	if endTime.IsZero() {
		endTime = s.nowFn()
	}
	var ended Session
	err := s.run(ctx, "end_session", "", func(tx Transaction) error {
		var err error
		ended, err = tx.UpdateSession(id, func(sess *Session) error {
			end := endTime
			sess.EndTime = &end
			sess.ClockedOut = true
			return nil
		})
		return err
	})
	return ended, err
}

// UpdateSession mutates an open session using the provided mutator.
func (s *Service) UpdateSession(ctx context.Context, id string, mutator func(*Session) error) (Session, error) {
	var updated Session
	err := s.run(ctx, "update_session", "", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateSession(id, mutator)
		return err
	})
	return updated, err
}

// AddCompletion records a production completion. The quantity must equal
// good + scrap + rework; efficiency is derived from the owning task's quota
// and the batch's produced count advances by the good units.
func (s *Service) AddCompletion(ctx context.Context, completion Completion) (Completion, error) {
	if completion.Quantity != completion.GoodUnits+completion.ScrapUnits+completion.ReworkUnits {
		return Completion{}, ValidationError{
			Field:  "quantity",
			Reason: "must equal goodUnits + scrapUnits + reworkUnits",
		}
	}
	var created Completion
	err := s.run(ctx, "add_completion", completion.EmployeeID, func(tx Transaction) error {
		view := tx.Snapshot()
		task, ok := view.FindTask(completion.TaskID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: completion.TaskID}
		}
		metrics := domain.ComputeCompletionMetrics(completion.StartTime, completion.EndTime, completion.Quantity, task.Quota)
		completion.Duration = metrics.Duration
		completion.UPH = metrics.UPH
		completion.Efficiency = metrics.Efficiency

		var err error
		created, err = tx.CreateCompletion(completion)
		if err != nil {
			return err
		}
		if created.BatchID == "" {
			return nil
		}
		_, err = tx.UpdateBatch(created.BatchID, func(b *Batch) error {
			b.ActualUnits += created.GoodUnits
			if b.Status == domain.BatchOpen {
				b.Status = domain.BatchInProgress
			}
			return nil
		})
		return err
	})
	return created, err
}

// UpdateCompletion mutates a completion using the provided mutator.
func (s *Service) UpdateCompletion(ctx context.Context, id string, mutator func(*Completion) error) (Completion, error) {
	var updated Completion
	err := s.run(ctx, "update_completion", "", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCompletion(id, mutator)
		return err
	})
	return updated, err
}

// AddQualityEvent appends a scrap/rework/hold/pass record.
func (s *Service) AddQualityEvent(ctx context.Context, event QualityEvent) (QualityEvent, error) {
	var created QualityEvent
	err := s.run(ctx, "add_quality_event", event.EmployeeID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateQualityEvent(event)
		return err
	})
	return created, err
}

// RecordOEE appends a daily/shift OEE aggregate.
func (s *Service) RecordOEE(ctx context.Context, calc OEECalculation) (OEECalculation, error) {
	var created OEECalculation
	err := s.run(ctx, "record_oee", "", func(tx Transaction) error {
		var err error
		created, err = tx.CreateOEECalculation(calc)
		return err
	})
	return created, err
}

// RaiseAlert records a floor notification.
func (s *Service) RaiseAlert(ctx context.Context, alert Alert) (Alert, error) {
	var created Alert
	err := s.run(ctx, "raise_alert", "", func(tx Transaction) error {
		var err error
		created, err = tx.CreateAlert(alert)
		return err
	})
	return created, err
}

// AcknowledgeAlert marks an alert acknowledged.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) (Alert, error) {
	var acked Alert
	err := s.run(ctx, "acknowledge_alert", "", func(tx Transaction) error {
		var err error
		acked, err = tx.UpdateAlert(id, func(a *Alert) error {
			a.Acknowledged = true
			return nil
		})
		return err
	})
	return acked, err
}

// RaiseAndon records a workstation help call.
func (s *Service) RaiseAndon(ctx context.Context, event AndonEvent) (AndonEvent, error) {
	var created AndonEvent
	err := s.run(ctx, "raise_andon", event.EmployeeID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateAndonEvent(event)
		return err
	})
	return created, err
}

// AcknowledgeAndon transitions an active andon call to acknowledged.
func (s *Service) AcknowledgeAndon(ctx context.Context, id string) (AndonEvent, error) {
	var acked AndonEvent
	err := s.run(ctx, "acknowledge_andon", "", func(tx Transaction) error {
		var err error
		acked, err = tx.UpdateAndonEvent(id, func(a *AndonEvent) error {
			a.Status = domain.AndonAcknowledged
			return nil
		})
		return err
	})
	return acked, err
}

// ResolveAndon closes out an andon call.
func (s *Service) ResolveAndon(ctx context.Context, id, resolvedBy, notes string) (AndonEvent, error) {
	var resolved AndonEvent
	err := s.run(ctx, "resolve_andon", resolvedBy, func(tx Transaction) error {
		var err error
		resolved, err = tx.UpdateAndonEvent(id, func(a *AndonEvent) error {
			now := s.nowFn()
			a.Status = domain.AndonResolved
			a.Resolved = &now
			a.ResolvedBy = resolvedBy
			if notes != "" {
				a.Notes = notes
			}
			return nil
		})
		return err
	})
	return resolved, err
}

// CreateShiftHandoff snapshots open work for the incoming shift.
func (s *Service) CreateShiftHandoff(ctx context.Context, handoff ShiftHandoff) (ShiftHandoff, error) {
	var created ShiftHandoff
	err := s.run(ctx, "create_shift_handoff", handoff.HandedOffBy, func(tx Transaction) error {
		view := tx.Snapshot()
		if len(handoff.ActiveBatches) == 0 {
			for _, b := range view.ListBatches() {
				if b.Status == domain.BatchOpen || b.Status == domain.BatchInProgress {
					handoff.ActiveBatches = append(handoff.ActiveBatches, b.ID)
				}
			}
		}
		if len(handoff.OpenSessions) == 0 {
			for _, sess := range view.ListSessions() {
				if !sess.ClockedOut {
					handoff.OpenSessions = append(handoff.OpenSessions, sess.ID)
				}
			}
		}
		var err error
		created, err = tx.CreateShiftHandoff(handoff)
		return err
	})
	return created, err
}

// AcknowledgeShiftHandoff records the receiving operator.
func (s *Service) AcknowledgeShiftHandoff(ctx context.Context, id, receivedBy string) (ShiftHandoff, error) {
	var acked ShiftHandoff
	err := s.run(ctx, "acknowledge_shift_handoff", receivedBy, func(tx Transaction) error {
		var err error
		acked, err = tx.UpdateShiftHandoff(id, func(h *ShiftHandoff) error {
			h.ReceivedBy = receivedBy
			h.Status = domain.HandoffAcknowledged
			return nil
		})
		return err
	})
	return acked, err
}

// MarkSyncing transitions a queue item to syncing and counts the attempt.
func (s *Service) MarkSyncing(ctx context.Context, itemID string) (SyncQueueItem, error) {
	var item SyncQueueItem
	err := s.run(ctx, "mark_syncing", "", func(tx Transaction) error {
		var err error
		item, err = tx.UpdateSyncQueueItem(itemID, func(i *SyncQueueItem) error {
			now := s.nowFn()
			i.Status = domain.QueueSyncing
			i.Attempts++
			i.LastAttempt = &now
			return nil
		})
		return err
	})
	return item, err
}

// MarkSynced records a successful delivery: the queue item completes and the
// underlying record is flagged synced.
func (s *Service) MarkSynced(ctx context.Context, itemID string) (SyncQueueItem, error) {
	var item SyncQueueItem
	err := s.run(ctx, "mark_synced", "", func(tx Transaction) error {
		var err error
		item, err = tx.UpdateSyncQueueItem(itemID, func(i *SyncQueueItem) error {
			i.Status = domain.QueueSuccess
			i.Error = ""
			return nil
		})
		if err != nil {
			return err
		}
		return markRecordStatus(tx, item, domain.SyncSynced)
	})
	return item, err
}

// MarkSyncFailed records a failed delivery attempt with its error.
func (s *Service) MarkSyncFailed(ctx context.Context, itemID, reason string) (SyncQueueItem, error) {
	var item SyncQueueItem
	err := s.run(ctx, "mark_sync_failed", "", func(tx Transaction) error {
		var err error
		item, err = tx.UpdateSyncQueueItem(itemID, func(i *SyncQueueItem) error {
			now := s.nowFn()
			i.Status = domain.QueueFailed
			i.Error = reason
			i.LastAttempt = &now
			return nil
		})
		return err
	})
	return item, err
}

// markRecordStatus flips the sync status of the record behind a queue item.
// The record may have been deleted since it was enqueued; that is not an
// error.
func markRecordStatus(tx Transaction, item SyncQueueItem, status domain.SyncStatus) error {
	switch item.EntityType {
	case domain.EntitySession:
		_, err := tx.UpdateSession(item.EntityID, func(sess *Session) error {
			sess.SyncStatus = status
			return nil
		})
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	case domain.EntityCompletion:
		_, err := tx.UpdateCompletion(item.EntityID, func(c *Completion) error {
			c.SyncStatus = status
			return nil
		})
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	default:
		return nil
	}
}

// LogConflict appends a reconciliation conflict record and flags the local
// record as conflicted when the remote copy won.
func (s *Service) LogConflict(ctx context.Context, conflict ConflictLog) (ConflictLog, error) {
	var created ConflictLog
	err := s.run(ctx, "log_conflict", conflict.ResolvedBy, func(tx Transaction) error {
		var err error
		created, err = tx.CreateConflictLog(conflict)
		if err != nil {
			return err
		}
		if conflict.Resolution != domain.ResolutionManualRequired {
			return nil
		}
		return markRecordStatus(tx, SyncQueueItem{
			EntityType: conflict.EntityType,
			EntityID:   conflict.EntityID,
		}, domain.SyncConflict)
	})
	return created, err
}

// ResolveConflict applies a winner chosen by last-write-wins ordering.
// When the remote copy wins it replaces the local record wholesale.
func (s *Service) ResolveConflict(ctx context.Context, conflict ConflictLog) (ConflictLog, error) {
	local := struct {
		LamportTimestamp int64  `json:"lamportTimestamp"`
		DeviceID         string `json:"deviceId"`
	}{}
	remote := local
	if err := json.Unmarshal(conflict.LocalVersion, &local); err != nil {
		return ConflictLog{}, fmt.Errorf("decode local version: %w", err)
	}
	if err := json.Unmarshal(conflict.RemoteVersion, &remote); err != nil {
		return ConflictLog{}, fmt.Errorf("decode remote version: %w", err)
	}
	if domain.CompareSyncOrder(local.LamportTimestamp, local.DeviceID, remote.LamportTimestamp, remote.DeviceID) >= 0 {
		conflict.Resolution = domain.ResolutionLocalWins
	} else {
		conflict.Resolution = domain.ResolutionRemoteWins
	}

	var created ConflictLog
	err := s.run(ctx, "resolve_conflict", conflict.ResolvedBy, func(tx Transaction) error {
		var err error
		created, err = tx.CreateConflictLog(conflict)
		if err != nil {
			return err
		}
		if conflict.Resolution != domain.ResolutionRemoteWins {
			return nil
		}
		return applyRemoteVersion(tx, conflict)
	})
	return created, err
}

// applyRemoteVersion overwrites the local record with the remote payload.
func applyRemoteVersion(tx Transaction, conflict ConflictLog) error {
	switch conflict.EntityType {
	case domain.EntitySession:
		var remote Session
		if err := json.Unmarshal(conflict.RemoteVersion, &remote); err != nil {
			return fmt.Errorf("decode remote session: %w", err)
		}
		remote.SyncStatus = domain.SyncSynced
		_, err := tx.UpdateSession(conflict.EntityID, func(sess *Session) error {
			*sess = remote
			return nil
		})
		if domain.IsNotFound(err) {
			_, err = tx.CreateSession(remote)
		}
		return err
	case domain.EntityCompletion:
		var remote Completion
		if err := json.Unmarshal(conflict.RemoteVersion, &remote); err != nil {
			return fmt.Errorf("decode remote completion: %w", err)
		}
		remote.SyncStatus = domain.SyncSynced
		_, err := tx.UpdateCompletion(conflict.EntityID, func(c *Completion) error {
			*c = remote
			return nil
		})
		if domain.IsNotFound(err) {
			_, err = tx.CreateCompletion(remote)
		}
		return err
	default:
		return nil
	}
}

// PutAppConfig stores the singleton application configuration row.
func (s *Service) PutAppConfig(ctx context.Context, cfg AppConfig) error {
	return s.run(ctx, "put_app_config", "", func(tx Transaction) error {
		return tx.PutAppConfig(cfg)
	})
}
