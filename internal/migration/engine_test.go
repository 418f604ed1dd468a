package migration

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"floortrack/internal/blob"
	"floortrack/internal/ident"
	"floortrack/internal/infra/persistence/memory"
	"floortrack/pkg/domain"
)

func newTestEngine(t *testing.T, kv KV, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	clock, err := ident.NewService(ident.NewMemoryBackend(), nil)
	require.NoError(t, err)
	store := memory.NewStore(clock)
	return NewEngine(store, kv, clock, opts...), store
}

func setJSON(t *testing.T, kv KV, key string, value any) {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	require.NoError(t, kv.Set(key, raw))
}

func TestRunFreshInstall(t *testing.T) {
	engine, store := newTestEngine(t, NewMemoryKV())

	status, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, status.Success)
	require.False(t, status.BackupCreated)
	require.Zero(t, status.RecordsMigrated)
	require.Contains(t, status.Notes, "fresh installation")

	require.Len(t, store.ListMigrationStatuses(), 1)
}

func TestRunIsIdempotent(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyAdminData, map[string]any{
		"employees": []map[string]any{{"id": "e1", "name": "Dana"}},
	})
	engine, store := newTestEngine(t, kv)
	ctx := context.Background()

	first, err := engine.Run(ctx)
	require.NoError(t, err)
	require.Positive(t, first.RecordsMigrated)

	second, err := engine.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, store.ListMigrationStatuses(), 1)
	require.Len(t, store.ListEmployees(), 1)
}

func TestRunMapsLegacyVocabulary(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyAdminData, map[string]any{
		"employees": []map[string]any{
			{"id": "e1", "name": "Dana", "role": "lead", "shift": "nights"},
		},
		"products": []map[string]any{
			{"id": "p1", "name": "Pod X", "type": "pods"},
		},
		"tasks": []map[string]any{
			{"id": "t1", "name": "Fill", "quota": 0, "productId": "p1"},
		},
	})
	engine, store := newTestEngine(t, kv)

	status, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, status.Success)
	require.Empty(t, status.Errors)

	emp, ok := store.GetEmployee("e1")
	require.True(t, ok)
	require.Equal(t, domain.RoleLeadOperator, emp.Role)
	require.Equal(t, domain.ShiftNight, emp.Shift)
	require.True(t, emp.Active, "missing active flag defaults to true")
	require.Equal(t, []string{"operator"}, emp.RBACRoles)

	prod, ok := store.GetProduct("p1")
	require.True(t, ok)
	require.Equal(t, domain.ProductPod, prod.Type)

	task, ok := store.GetTask("t1")
	require.True(t, ok)
	require.Equal(t, 100.0, task.Quota, "non-positive quotas take the default")
}

func TestRunCreatesDefaultBatchAndResolvesRefs(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyActiveSessions, []map[string]any{
		{"id": "s1", "startTime": "2024-06-01T08:00:00.000Z"},
	})
	engine, store := newTestEngine(t, kv)

	status, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, status.Success)
	require.Empty(t, status.Errors)

	batches := store.ListBatches()
	require.Len(t, batches, 1)
	require.Contains(t, batches[0].Name, "-DEFAULT")
	require.Equal(t, 1000, batches[0].ExpectedUnits)
	require.Equal(t, domain.BatchOpen, batches[0].Status)

	sess, ok := store.GetSession("s1")
	require.True(t, ok)
	require.NotEmpty(t, sess.EmployeeID, "missing refs resolve to created defaults")
	require.NotEmpty(t, sess.TaskID)
	require.Equal(t, batches[0].ID, sess.BatchID)

	var names []string
	for _, e := range store.ListEmployees() {
		names = append(names, e.Name)
	}
	require.Contains(t, names, "Default Operator")
}

func TestRunStampsImportsSynced(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyActiveSessions, []map[string]any{
		{"id": "s1", "employeeId": "e1", "startTime": "2024-06-01T08:00:00.000Z"},
	})
	setJSON(t, kv, keyCompletedEntries, []map[string]any{
		{
			"id": "c1", "employeeId": "e1", "quantity": 40,
			"startTime": "2024-06-01T08:00:00.000Z",
			"endTime":   "2024-06-01T09:00:00.000Z",
		},
	})
	setJSON(t, kv, keyAdminData, map[string]any{
		"employees": []map[string]any{{"id": "e1", "name": "Dana"}},
	})
	engine, store := newTestEngine(t, kv)

	status, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, status.Success)

	sess, ok := store.GetSession("s1")
	require.True(t, ok)
	require.Equal(t, domain.SyncSynced, sess.SyncStatus)
	require.NotZero(t, sess.LamportTimestamp)
	require.NotEmpty(t, sess.DeviceID)

	comp, ok := store.GetCompletion("c1")
	require.True(t, ok)
	require.Equal(t, domain.SyncSynced, comp.SyncStatus)
	require.Equal(t, 40, comp.GoodUnits, "missing good units default to quantity")
	require.NotEmpty(t, comp.SessionID)

	// Imports are a bootstrap, not new work for the outbox.
	require.Empty(t, store.ListSyncQueueItems())
}

func TestRunKeepsLegacyCompletionMetrics(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyCompletedEntries, []map[string]any{
		{
			"id": "c1", "quantity": 40,
			"startTime": "not a timestamp",
			"endTime":   "also not a timestamp",
			"duration":  2700000,
			"uph":       53.3,
		},
	})
	engine, store := newTestEngine(t, kv)

	status, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, status.Success)

	// Unparseable timestamps fall back to the migration date, which would
	// derive a zero interval; the recorded legacy metrics must win.
	comp, ok := store.GetCompletion("c1")
	require.True(t, ok)
	require.EqualValues(t, 2700000, comp.Duration)
	require.Equal(t, 53.3, comp.UPH)
}

func TestRunMigratesDailyHistory(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyDailyHistory, map[string]any{
		"2024-06-01": map[string]any{"totalUnits": 400, "totalHours": 7.5, "averageEfficiency": 96.2},
		"2024-06-02": map[string]any{"totalUnits": 380, "fpy": 98.5},
	})
	engine, store := newTestEngine(t, kv)

	status, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, status.Success)

	archives := store.ListDailyArchives()
	require.Len(t, archives, 2)
	byDate := map[string]domain.DailyArchive{}
	for _, a := range archives {
		byDate[a.Date] = a
	}
	require.True(t, byDate["2024-06-01"].MigratedFromLegacy)
	require.Equal(t, 100.0, byDate["2024-06-01"].FPY, "missing FPY defaults to 100")
	require.Equal(t, 98.5, byDate["2024-06-02"].FPY)
	require.NotNil(t, byDate["2024-06-01"].CompletionIDs)
}

func TestRunIsolatesRecordErrors(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyAdminData, map[string]any{
		"employees": []map[string]any{
			{"id": "e1", "name": "Dana"},
			{"id": "e1", "name": "Duplicate"},
			{"id": "e2", "name": "Ari"},
		},
	})
	engine, store := newTestEngine(t, kv)

	status, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.False(t, status.Success)
	require.Len(t, status.Errors, 1)
	require.Contains(t, status.Errors[0], "Duplicate")

	require.Len(t, store.ListEmployees(), 2, "good records migrate despite the bad one")
}

func TestRunWritesBackup(t *testing.T) {
	kv := NewMemoryKV()
	setJSON(t, kv, keyAdminData, map[string]any{
		"employees": []map[string]any{{"id": "e1", "name": "Dana"}},
	})
	blobs := blob.NewMemory()
	engine, _ := newTestEngine(t, kv, WithBlobStore(blobs))
	ctx := context.Background()

	status, err := engine.Run(ctx)
	require.NoError(t, err)
	require.True(t, status.BackupCreated)
	require.NotEmpty(t, status.BackupPath)

	raw, ok, err := kv.Get(backupKey)
	require.NoError(t, err)
	require.True(t, ok)
	var envelope backupEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, statusVersion, envelope.Version)
	require.NotEmpty(t, envelope.DeviceID)
	require.Len(t, envelope.Data.AdminData.Employees, 1)

	infos, err := blobs.List(ctx, "legacy/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, status.BackupPath, infos[0].Key)

	_, rc, err := blobs.Get(ctx, infos[0].Key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	copied, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(copied))
}

func TestMapRoleShiftProductType(t *testing.T) {
	require.Equal(t, domain.RoleLeadOperator, MapRole("lead operator"))
	require.Equal(t, domain.RoleSupervisor, MapRole("SUPER"))
	require.Equal(t, domain.RoleQA, MapRole("quality"))
	require.Equal(t, domain.RoleOperator, MapRole("mystery"))

	require.Equal(t, domain.ShiftSwing, MapShift("evening"))
	require.Equal(t, domain.ShiftDay, MapShift(""))

	require.Equal(t, domain.ProductAIODevice, MapProductType("aio device"))
	require.Equal(t, domain.ProductDisposable, MapProductType("disposables"))
	require.Equal(t, domain.ProductCartridge, MapProductType("unknown"))
}

func TestFileKVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "legacy.json")
	kv := NewFileKV(path)

	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	require.False(t, ok, "a missing file reads as an empty namespace")

	require.NoError(t, kv.Set("a", []byte(`{"x":1}`)))
	require.NoError(t, kv.Set("b", []byte(`[1,2,3]`)))

	reopened := NewFileKV(path)
	raw, ok, err := reopened.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"x":1}`, string(raw))
}
