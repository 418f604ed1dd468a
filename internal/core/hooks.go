package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"floortrack/pkg/domain"
)

const dispatchTimeout = 5 * time.Second

// Dispatcher fans committed changes out to the audit trail and the sync
// outbox. It runs after the primary transaction has committed; its failures
// are logged and never surfaced to the caller, so bookkeeping can never
// roll back production data.
type Dispatcher struct {
	store    PersistentStore
	log      *zap.Logger
	detached bool
	wg       sync.WaitGroup
}

// NewDispatcher constructs a dispatcher. When detached is true, fan-out runs
// on its own goroutine; synchronous mode exists for tests and the CLI.
func NewDispatcher(store PersistentStore, log *zap.Logger, detached bool) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{store: store, log: log, detached: detached}
}

// Dispatch applies the fan-out rules to a committed change set. The actor is
// recorded on audit entries.
func (d *Dispatcher) Dispatch(actor string, changes []Change) {
	if len(changes) == 0 {
		return
	}
	if !d.detached {
		d.apply(actor, changes)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.apply(actor, changes)
	}()
}

// Wait blocks until all detached fan-out work has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) apply(actor string, changes []Change) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	_, err := d.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, change := range changes {
			switch change.Entity {
			case domain.EntityBatch:
				if err := recordAudit(tx, actor, change); err != nil {
					return err
				}
			case domain.EntitySession, domain.EntityCompletion:
				if change.Action != domain.ActionCreate && change.Action != domain.ActionUpdate {
					continue
				}
				// Sync-state transitions (marking synced or conflicted)
				// must not loop back into the outbox.
				if !isPending(change.After) {
					continue
				}
				if err := enqueueSync(tx, change); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		d.log.Warn("change fan-out failed",
			zap.String("actor", actor),
			zap.Int("changes", len(changes)),
			zap.Error(err))
	}
}

func recordAudit(tx Transaction, actor string, change Change) error {
	record := change.After
	if record == nil {
		record = change.Before
	}
	snapshot, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = tx.CreateAuditEvent(AuditEvent{
		EntityType: change.Entity,
		EntityID:   change.ID,
		Operation:  change.Action,
		EmployeeID: actor,
		Snapshot:   snapshot,
	})
	return err
}

func enqueueSync(tx Transaction, change Change) error {
	payload, err := json.Marshal(change.After)
	if err != nil {
		return err
	}
	lamport, device := syncStamp(change.After)
	_, err = tx.CreateSyncQueueItem(SyncQueueItem{
		EntityType:       change.Entity,
		EntityID:         change.ID,
		Operation:        change.Action,
		Payload:          payload,
		LamportTimestamp: lamport,
		DeviceID:         device,
		Status:           domain.QueuePending,
	})
	return err
}

func syncStamp(record any) (int64, string) {
	switch r := record.(type) {
	case Session:
		return r.LamportTimestamp, r.DeviceID
	case Completion:
		return r.LamportTimestamp, r.DeviceID
	default:
		return 0, ""
	}
}

func isPending(record any) bool {
	switch r := record.(type) {
	case Session:
		return r.SyncStatus == domain.SyncPending
	case Completion:
		return r.SyncStatus == domain.SyncPending
	default:
		return false
	}
}
