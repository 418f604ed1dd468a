// Package migration imports data from the legacy flat key-value tracker
// into the structured store. It backs up the raw legacy payload before
// touching anything, migrates with per-record error isolation, and records
// exactly one status row per installation so a run never repeats.
package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"floortrack/internal/blob"
	"floortrack/pkg/domain"

	"go.uber.org/zap"
)

const statusVersion = "1.0"

// Engine performs the one-shot legacy import.
type Engine struct {
	store domain.PersistentStore
	kv    KV
	blobs blob.Store
	clock domain.Clock
	log   *zap.Logger
	nowFn func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithBlobStore copies the pre-migration backup to blob storage in
// addition to the legacy namespace.
func WithBlobStore(store blob.Store) Option {
	return func(e *Engine) { e.blobs = store }
}

// WithLogger overrides the default nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine constructs a migration engine over the given store, legacy
// namespace, and clock.
func NewEngine(store domain.PersistentStore, kv KV, clock domain.Clock, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		kv:    kv,
		clock: clock,
		log:   zap.NewNop(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the migration once. Any recorded run, successful or not,
// short-circuits: the prior status is returned unchanged. Migration
// failures are recorded and reported through the status rather than the
// error; the error return covers storage faults only.
func (e *Engine) Run(ctx context.Context) (domain.MigrationStatus, error) {
	if prior, ok := e.priorRun(); ok {
		e.log.Info("migration already recorded, skipping",
			zap.String("id", prior.ID),
			zap.Bool("success", prior.Success))
		return prior, nil
	}

	migrationDate := e.nowFn()
	legacy := e.loadLegacy()

	if legacy.empty() {
		e.log.Info("no legacy data found, fresh installation")
		return e.recordStatus(ctx, domain.MigrationStatus{
			Version:       statusVersion,
			MigrationDate: migrationDate,
			Success:       true,
			Errors:        []string{},
			BackupCreated: false,
			Notes:         "fresh installation, no legacy data to migrate",
		})
	}

	backupPath, backupErr := e.createBackup(ctx, legacy, migrationDate)
	if backupErr != nil {
		e.log.Warn("legacy backup failed", zap.Error(backupErr))
	}

	migrated, errs, runErr := e.migrate(ctx, legacy, migrationDate)
	if runErr != nil {
		e.log.Error("migration transaction failed", zap.Error(runErr))
		return e.recordStatus(ctx, domain.MigrationStatus{
			Version:       statusVersion,
			MigrationDate: migrationDate,
			Success:       false,
			Errors:        []string{runErr.Error()},
			BackupCreated: backupErr == nil,
			BackupPath:    backupPath,
			Notes:         "migration failed, continuing with fresh state",
		})
	}

	e.log.Info("legacy migration complete",
		zap.Int("records", migrated),
		zap.Int("errors", len(errs)))
	return e.recordStatus(ctx, domain.MigrationStatus{
		Version:         statusVersion,
		MigrationDate:   migrationDate,
		Success:         len(errs) == 0,
		RecordsMigrated: migrated,
		Errors:          errs,
		BackupCreated:   backupErr == nil,
		BackupPath:      backupPath,
	})
}

// priorRun returns the most recent recorded run, if any.
func (e *Engine) priorRun() (domain.MigrationStatus, bool) {
	statuses := e.store.ListMigrationStatuses()
	if len(statuses) == 0 {
		return domain.MigrationStatus{}, false
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].MigrationDate.After(statuses[j].MigrationDate)
	})
	return statuses[0], true
}

// loadLegacy reads the four legacy keys. Malformed payloads are logged and
// treated as absent so one corrupt key never blocks the others.
func (e *Engine) loadLegacy() legacyData {
	var data legacyData
	readInto := func(key string, target any) {
		raw, ok, err := e.kv.Get(key)
		if err != nil {
			e.log.Warn("legacy key read failed", zap.String("key", key), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, target); err != nil {
			e.log.Warn("legacy key unparseable", zap.String("key", key), zap.Error(err))
		}
	}
	readInto(keyAdminData, &data.AdminData)
	readInto(keyActiveSessions, &data.ActiveSessions)
	readInto(keyCompletedEntries, &data.CompletedEntries)
	readInto(keyDailyHistory, &data.DailyHistory)
	return data
}

// backupEnvelope wraps the raw legacy payload for the pre-migration backup.
type backupEnvelope struct {
	Version   string     `json:"version"`
	Timestamp time.Time  `json:"timestamp"`
	DeviceID  string     `json:"deviceId"`
	Data      legacyData `json:"data"`
}

// createBackup writes the legacy payload back into the namespace under the
// backup key and, when blob storage is wired, keeps a timestamped copy
// there too.
func (e *Engine) createBackup(ctx context.Context, legacy legacyData, migrationDate time.Time) (string, error) {
	envelope := backupEnvelope{
		Version:   statusVersion,
		Timestamp: migrationDate,
		DeviceID:  e.clock.DeviceID(),
		Data:      legacy,
	}
	payload, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", err
	}
	if err := e.kv.Set(backupKey, payload); err != nil {
		return "", err
	}
	path := backupKey
	if e.blobs != nil {
		key := fmt.Sprintf("legacy/%s.json", migrationDate.Format("20060102-150405"))
		if _, err := e.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"source": backupKey},
		}); err != nil {
			e.log.Warn("blob backup copy failed", zap.String("key", key), zap.Error(err))
		} else {
			path = key
		}
	}
	return path, nil
}

// migrate imports everything inside one transaction in dependency order.
// Individual record failures are collected, not fatal; a returned error
// means the whole transaction rolled back.
func (e *Engine) migrate(ctx context.Context, legacy legacyData, migrationDate time.Time) (int, []string, error) {
	var migrated int
	errs := []string{}
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if legacy.AdminData != nil {
			for _, emp := range legacy.AdminData.Employees {
				if err := e.migrateEmployee(tx, emp, migrationDate); err != nil {
					errs = append(errs, fmt.Sprintf("employee %q: %v", emp.Name, err))
					continue
				}
				migrated++
			}
			for _, prod := range legacy.AdminData.Products {
				if err := e.migrateProduct(tx, prod, migrationDate); err != nil {
					errs = append(errs, fmt.Sprintf("product %q: %v", prod.Name, err))
					continue
				}
				migrated++
			}
			for _, task := range legacy.AdminData.Tasks {
				if err := e.migrateTask(tx, task, migrationDate); err != nil {
					errs = append(errs, fmt.Sprintf("task %q: %v", task.Name, err))
					continue
				}
				migrated++
			}
		}
		if err := e.createDefaultBatch(tx, migrationDate); err != nil {
			errs = append(errs, fmt.Sprintf("default batch: %v", err))
		} else {
			migrated++
		}
		for _, sess := range legacy.ActiveSessions {
			if err := e.migrateSession(tx, sess, migrationDate); err != nil {
				errs = append(errs, fmt.Sprintf("session %q: %v", sess.ID, err))
				continue
			}
			migrated++
		}
		for _, comp := range legacy.CompletedEntries {
			if err := e.migrateCompletion(tx, comp, migrationDate); err != nil {
				errs = append(errs, fmt.Sprintf("completion %q: %v", comp.ID, err))
				continue
			}
			migrated++
		}
		dates := make([]string, 0, len(legacy.DailyHistory))
		for date := range legacy.DailyHistory {
			dates = append(dates, date)
		}
		sort.Strings(dates)
		for _, date := range dates {
			if err := e.migrateDay(tx, date, legacy.DailyHistory[date], migrationDate); err != nil {
				errs = append(errs, fmt.Sprintf("daily history %s: %v", date, err))
				continue
			}
			migrated++
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return migrated, errs, nil
}

func (e *Engine) migrateEmployee(tx domain.Transaction, legacy legacyEmployee, migrationDate time.Time) error {
	name := legacy.Name
	if name == "" {
		name = "Unknown Employee"
	}
	_, err := tx.CreateEmployee(domain.Employee{
		ID:        legacy.ID,
		Name:      name,
		Role:      MapRole(legacy.Role),
		Shift:     MapShift(legacy.Shift),
		Active:    legacy.Active == nil || *legacy.Active,
		RBACRoles: []string{"operator"},
		Created:   parseTime(legacy.Created, migrationDate),
	})
	return err
}

func (e *Engine) migrateProduct(tx domain.Transaction, legacy legacyProduct, migrationDate time.Time) error {
	name := legacy.Name
	if name == "" {
		name = "Unknown Product"
	}
	_, err := tx.CreateProduct(domain.Product{
		ID:      legacy.ID,
		Name:    name,
		Type:    MapProductType(legacy.Type),
		Active:  legacy.Active == nil || *legacy.Active,
		Created: parseTime(legacy.Created, migrationDate),
	})
	return err
}

func (e *Engine) migrateTask(tx domain.Transaction, legacy legacyTask, migrationDate time.Time) error {
	name := legacy.Name
	if name == "" {
		name = "Unknown Task"
	}
	quota := legacy.Quota
	if quota <= 0 {
		quota = 100
	}
	productID := legacy.ProductID
	if productID == "" {
		var err error
		if productID, err = e.defaultProductID(tx, migrationDate); err != nil {
			return err
		}
	}
	_, err := tx.CreateTask(domain.Task{
		ID:        legacy.ID,
		Name:      name,
		Quota:     quota,
		ProductID: productID,
		Created:   parseTime(legacy.Created, migrationDate),
	})
	return err
}

// createDefaultBatch gives migrated sessions and completions a landing
// batch when the legacy data carries none.
func (e *Engine) createDefaultBatch(tx domain.Transaction, migrationDate time.Time) error {
	productID, err := e.defaultProductID(tx, migrationDate)
	if err != nil {
		return err
	}
	_, err = tx.CreateBatch(domain.Batch{
		Name:          migrationDate.Format("20060102") + "-DEFAULT",
		ProductID:     productID,
		ExpectedUnits: 1000,
		ActualUnits:   0,
		Status:        domain.BatchOpen,
		Genealogy:     []string{},
	})
	return err
}

func (e *Engine) migrateSession(tx domain.Transaction, legacy legacySession, migrationDate time.Time) error {
	refs, err := e.resolveRefs(tx, legacy.EmployeeID, legacy.TaskID, legacy.ProductID, legacy.BatchID, migrationDate)
	if err != nil {
		return err
	}
	_, err = tx.CreateSession(domain.Session{
		ID:         legacy.ID,
		EmployeeID: refs.employee,
		TaskID:     refs.task,
		ProductID:  refs.product,
		BatchID:    refs.batch,
		StartTime:  parseTime(legacy.StartTime, migrationDate),
		EndTime:    parseTimePtr(legacy.EndTime),
		Notes:      legacy.Notes,
		ClockedOut: legacy.ClockedOut,
		SyncMeta:   e.migratedSyncMeta(migrationDate),
	})
	return err
}

func (e *Engine) migrateCompletion(tx domain.Transaction, legacy legacyCompletion, migrationDate time.Time) error {
	refs, err := e.resolveRefs(tx, legacy.EmployeeID, legacy.TaskID, legacy.ProductID, legacy.BatchID, migrationDate)
	if err != nil {
		return err
	}
	sessionID := legacy.SessionID
	if sessionID == "" {
		sessionID = e.clock.NewID()
	}
	goodUnits := legacy.Quantity
	if legacy.GoodUnits != nil {
		goodUnits = *legacy.GoodUnits
	}
	_, err = tx.CreateCompletion(domain.Completion{
		ID:            legacy.ID,
		SessionID:     sessionID,
		EmployeeID:    refs.employee,
		TaskID:        refs.task,
		ProductID:     refs.product,
		BatchID:       refs.batch,
		Quantity:      legacy.Quantity,
		GoodUnits:     goodUnits,
		ScrapUnits:    legacy.ScrapUnits,
		ReworkUnits:   legacy.ReworkUnits,
		StartTime:     parseTime(legacy.StartTime, migrationDate),
		EndTime:       parseTime(legacy.EndTime, migrationDate),
		Duration:      legacy.Duration,
		UPH:           legacy.UPH,
		Efficiency:    legacy.Efficiency,
		QualityReason: legacy.QualityReason,
		DefectCodes:   []string{},
		SyncMeta:      e.migratedSyncMeta(migrationDate),
	})
	return err
}

func (e *Engine) migrateDay(tx domain.Transaction, date string, day legacyDay, migrationDate time.Time) error {
	fpy := 100.0
	if day.FPY != nil {
		fpy = *day.FPY
	}
	archive := domain.DailyArchive{
		Date:               date,
		Timestamp:          parseTime(day.Timestamp, migrationDate),
		CompletionIDs:      emptyIfNil(day.CompletionIDs),
		SessionIDs:         emptyIfNil(day.SessionIDs),
		BatchIDs:           emptyIfNil(day.BatchIDs),
		TotalUnits:         day.TotalUnits,
		TotalHours:         day.TotalHours,
		AverageEfficiency:  day.AverageEfficiency,
		OEE:                day.OEE,
		FPY:                fpy,
		ShiftNotes:         day.ShiftNotes,
		ShiftHandoffIDs:    emptyIfNil(day.ShiftHandoffs),
		MigratedFromLegacy: true,
	}
	_, err := tx.CreateDailyArchive(archive)
	return err
}

// migratedSyncMeta stamps imported records as already synced: migration is
// a local bootstrap, not new work for the outbox.
func (e *Engine) migratedSyncMeta(migrationDate time.Time) domain.SyncMeta {
	return domain.SyncMeta{
		DeviceID:         e.clock.DeviceID(),
		LamportTimestamp: e.clock.NextLamport(),
		LastModified:     migrationDate,
		SyncStatus:       domain.SyncSynced,
	}
}

type resolvedRefs struct {
	employee, task, product, batch string
}

// resolveRefs fills missing foreign keys with the first existing record of
// each kind, creating documented defaults when the store is empty.
func (e *Engine) resolveRefs(tx domain.Transaction, employeeID, taskID, productID, batchID string, migrationDate time.Time) (resolvedRefs, error) {
	var refs resolvedRefs
	var err error
	refs.employee = employeeID
	if refs.employee == "" {
		if refs.employee, err = e.defaultEmployeeID(tx, migrationDate); err != nil {
			return refs, err
		}
	}
	refs.task = taskID
	if refs.task == "" {
		if refs.task, err = e.defaultTaskID(tx, migrationDate); err != nil {
			return refs, err
		}
	}
	refs.product = productID
	if refs.product == "" {
		if refs.product, err = e.defaultProductID(tx, migrationDate); err != nil {
			return refs, err
		}
	}
	refs.batch = batchID
	if refs.batch == "" {
		if batches := tx.Snapshot().ListBatches(); len(batches) > 0 {
			refs.batch = batches[0].ID
		} else {
			refs.batch = e.clock.NewID()
		}
	}
	return refs, nil
}

func (e *Engine) defaultEmployeeID(tx domain.Transaction, migrationDate time.Time) (string, error) {
	if employees := tx.Snapshot().ListEmployees(); len(employees) > 0 {
		return employees[0].ID, nil
	}
	created, err := tx.CreateEmployee(domain.Employee{
		Name:      "Default Operator",
		Role:      domain.RoleOperator,
		Shift:     domain.ShiftDay,
		Active:    true,
		RBACRoles: []string{"operator"},
		Created:   migrationDate,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (e *Engine) defaultProductID(tx domain.Transaction, migrationDate time.Time) (string, error) {
	if products := tx.Snapshot().ListProducts(); len(products) > 0 {
		return products[0].ID, nil
	}
	created, err := tx.CreateProduct(domain.Product{
		Name:    "Default Product",
		Type:    domain.ProductCartridge,
		Active:  true,
		Created: migrationDate,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (e *Engine) defaultTaskID(tx domain.Transaction, migrationDate time.Time) (string, error) {
	if tasks := tx.Snapshot().ListTasks(); len(tasks) > 0 {
		return tasks[0].ID, nil
	}
	productID, err := e.defaultProductID(tx, migrationDate)
	if err != nil {
		return "", err
	}
	created, err := tx.CreateTask(domain.Task{
		Name:      "Default Task",
		Quota:     100,
		ProductID: productID,
		Created:   migrationDate,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// recordStatus persists the run outcome. A failure to record is a storage
// fault and surfaces as the error.
func (e *Engine) recordStatus(ctx context.Context, status domain.MigrationStatus) (domain.MigrationStatus, error) {
	var recorded domain.MigrationStatus
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		recorded, err = tx.CreateMigrationStatus(status)
		return err
	})
	if err != nil {
		return domain.MigrationStatus{}, err
	}
	return recorded, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
