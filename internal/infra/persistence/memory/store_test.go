package memory

import (
	"context"
	"testing"
	"time"

	"floortrack/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(nil)
}

func TestEmployeeCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var created Employee
	changes, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateEmployee(Employee{Name: "Dana", Role: domain.RoleOperator, Shift: domain.ShiftDay, Active: true})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("expected an assigned ID")
	}
	if created.Created.IsZero() || created.Updated.IsZero() {
		t.Fatal("expected created/updated stamps")
	}
	if len(changes) != 1 || changes[0].Action != domain.ActionCreate {
		t.Fatalf("changes = %+v", changes)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateEmployee(Employee{ID: created.ID, Name: "Clone"})
		return err
	})
	if !domain.IsDuplicateKey(err) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateEmployee(created.ID, func(e *Employee) error {
			e.Shift = domain.ShiftNight
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	got, ok := store.GetEmployee(created.ID)
	if !ok || got.Shift != domain.ShiftNight {
		t.Fatalf("update not visible: %+v ok=%v", got, ok)
	}

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteEmployee(created.ID)
	}); err != nil {
		t.Fatal(err)
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateEmployee(created.ID, func(e *Employee) error { return nil })
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	wantErr := domain.NotFoundError{Entity: domain.EntityTask, ID: "missing"}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateProduct(Product{Name: "Cart 9"}); err != nil {
			return err
		}
		return wantErr
	})
	if err == nil {
		t.Fatal("expected the transaction to fail")
	}
	if got := store.ListProducts(); len(got) != 0 {
		t.Fatalf("failed transaction leaked state: %+v", got)
	}
}

func TestSessionCreateStampsSyncMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var sess Session
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		sess, err = tx.CreateSession(Session{EmployeeID: "emp-1", TaskID: "task-1"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if sess.SyncStatus != domain.SyncPending {
		t.Fatalf("status = %s, want pending", sess.SyncStatus)
	}
	if sess.DeviceID == "" || sess.LamportTimestamp == 0 || sess.LastModified.IsZero() {
		t.Fatalf("incomplete sync meta: %+v", sess.SyncMeta)
	}
}

func TestSessionCreateKeepsPresetSyncMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	preset := domain.SyncMeta{
		DeviceID:         "legacy-device",
		LamportTimestamp: 777,
		LastModified:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SyncStatus:       domain.SyncSynced,
	}
	var sess Session
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		sess, err = tx.CreateSession(Session{EmployeeID: "emp-1", SyncMeta: preset})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if sess.SyncMeta != preset {
		t.Fatalf("preset sync meta overwritten: %+v", sess.SyncMeta)
	}
}

func TestSessionUpdateRestampsUnlessStatusTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var sess Session
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		sess, err = tx.CreateSession(Session{EmployeeID: "emp-1"})
		return err
	}); err != nil {
		t.Fatal(err)
	}

	// A content edit restamps: fresh lamport, back to pending.
	var edited Session
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		edited, err = tx.UpdateSession(sess.ID, func(s *Session) error {
			s.Notes = "line 2 swap"
			return nil
		})
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if edited.LamportTimestamp <= sess.LamportTimestamp {
		t.Fatalf("edit did not advance lamport: %d -> %d", sess.LamportTimestamp, edited.LamportTimestamp)
	}
	if edited.SyncStatus != domain.SyncPending {
		t.Fatalf("edit status = %s, want pending", edited.SyncStatus)
	}

	// A pure sync-state transition must not re-dirty the record.
	var synced Session
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		synced, err = tx.UpdateSession(sess.ID, func(s *Session) error {
			s.SyncStatus = domain.SyncSynced
			return nil
		})
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if synced.SyncStatus != domain.SyncSynced {
		t.Fatalf("status = %s, want synced", synced.SyncStatus)
	}
	if synced.LamportTimestamp != edited.LamportTimestamp {
		t.Fatalf("status transition advanced lamport: %d -> %d", edited.LamportTimestamp, synced.LamportTimestamp)
	}

	// Writing the same status again is a no-op, not a content edit; the
	// record must stay synced instead of bouncing back to pending.
	var again Session
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		again, err = tx.UpdateSession(sess.ID, func(s *Session) error {
			s.SyncStatus = domain.SyncSynced
			return nil
		})
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if again.SyncStatus != domain.SyncSynced {
		t.Fatalf("repeated status write re-dirtied the record: %s", again.SyncStatus)
	}
	if again.LamportTimestamp != synced.LamportTimestamp {
		t.Fatalf("repeated status write advanced lamport: %d -> %d", synced.LamportTimestamp, again.LamportTimestamp)
	}
}

func TestCompletionCreateDerivesDurationAndUPH(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	var comp Completion
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		comp, err = tx.CreateCompletion(Completion{
			EmployeeID: "emp-1",
			Quantity:   50,
			GoodUnits:  50,
			StartTime:  start,
			EndTime:    start.Add(30 * time.Minute),
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if comp.Duration != int64(30*time.Minute/time.Millisecond) {
		t.Fatalf("duration = %d", comp.Duration)
	}
	if comp.UPH != 100 {
		t.Fatalf("uph = %v, want 100", comp.UPH)
	}
	// Efficiency needs the task quota; the service layer owns that.
	if comp.Efficiency != 0 {
		t.Fatalf("efficiency = %v, want 0 at the store level", comp.Efficiency)
	}
	if comp.DefectCodes == nil {
		t.Fatal("defect codes should default to an empty slice")
	}
}

func TestCompletionCreateKeepsSuppliedMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Legacy imports arrive with recorded duration and UPH; those must
	// survive even when the timestamps would derive different values.
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	var comp Completion
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		comp, err = tx.CreateCompletion(Completion{
			EmployeeID: "emp-1",
			Quantity:   50,
			GoodUnits:  50,
			StartTime:  start,
			EndTime:    start.Add(time.Hour),
			Duration:   int64(45 * time.Minute / time.Millisecond),
			UPH:        66.7,
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if comp.Duration != int64(45*time.Minute/time.Millisecond) {
		t.Fatalf("supplied duration overwritten: %d", comp.Duration)
	}
	if comp.UPH != 66.7 {
		t.Fatalf("supplied uph overwritten: %v", comp.UPH)
	}
}

func TestViewIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var batch Batch
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		batch, err = tx.CreateBatch(Batch{Name: "B-100", ExpectedUnits: 500})
		return err
	}); err != nil {
		t.Fatal(err)
	}

	err := store.View(ctx, func(view TransactionView) error {
		got, ok := view.FindBatch(batch.ID)
		if !ok {
			t.Fatal("batch missing from view")
		}
		got.Name = "mutated"
		got.Genealogy = append(got.Genealogy, "x")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	committed, _ := store.GetBatch(batch.ID)
	if committed.Name != "B-100" || len(committed.Genealogy) != 0 {
		t.Fatalf("view mutation leaked into committed state: %+v", committed)
	}
}

func TestExportImportStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateEmployee(Employee{ID: "emp-1", Name: "Dana"}); err != nil {
			return err
		}
		if _, err := tx.CreateBatch(Batch{ID: "batch-1", Name: "B-100"}); err != nil {
			return err
		}
		if _, err := tx.CreateSession(Session{ID: "sess-1", EmployeeID: "emp-1"}); err != nil {
			return err
		}
		return tx.PutAppConfig(AppConfig{Version: "1.0"})
	}); err != nil {
		t.Fatal(err)
	}

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())

	if _, ok := restored.GetEmployee("emp-1"); !ok {
		t.Fatal("employee lost in round trip")
	}
	if _, ok := restored.GetBatch("batch-1"); !ok {
		t.Fatal("batch lost in round trip")
	}
	sess, ok := restored.GetSession("sess-1")
	if !ok || sess.SyncStatus != domain.SyncPending {
		t.Fatalf("session lost or altered in round trip: %+v ok=%v", sess, ok)
	}
	err := restored.View(ctx, func(view TransactionView) error {
		if cfg, ok := view.GetAppConfig(); !ok || cfg.Version != "1.0" {
			t.Fatalf("config lost in round trip: %+v ok=%v", cfg, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestContextCancellationRejected(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error { return nil }); err == nil {
		t.Fatal("expected a cancelled transaction to fail")
	}
	if err := store.View(ctx, func(view TransactionView) error { return nil }); err == nil {
		t.Fatal("expected a cancelled view to fail")
	}
}
