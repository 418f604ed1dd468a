package domain

import "context"

// Transaction exposes the operations a persistence implementation must
// support within an atomic scope. Create operations stamp lifecycle
// metadata (IDs, timestamps, Lamport stamps, derived fields) before the
// record lands; Update operations re-stamp sync metadata on sessions and
// completions.
type Transaction interface {
	Snapshot() TransactionView

	CreateEmployee(Employee) (Employee, error)
	UpdateEmployee(id string, mutator func(*Employee) error) (Employee, error)
	DeleteEmployee(id string) error

	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error

	CreateTask(Task) (Task, error)
	UpdateTask(id string, mutator func(*Task) error) (Task, error)
	DeleteTask(id string) error

	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	DeleteBatch(id string) error

	CreateSession(Session) (Session, error)
	UpdateSession(id string, mutator func(*Session) error) (Session, error)
	DeleteSession(id string) error

	CreateCompletion(Completion) (Completion, error)
	UpdateCompletion(id string, mutator func(*Completion) error) (Completion, error)

	CreateQualityEvent(QualityEvent) (QualityEvent, error)
	CreateOEECalculation(OEECalculation) (OEECalculation, error)

	CreateAlert(Alert) (Alert, error)
	UpdateAlert(id string, mutator func(*Alert) error) (Alert, error)

	CreateAndonEvent(AndonEvent) (AndonEvent, error)
	UpdateAndonEvent(id string, mutator func(*AndonEvent) error) (AndonEvent, error)

	CreateDailyArchive(DailyArchive) (DailyArchive, error)

	CreateShiftHandoff(ShiftHandoff) (ShiftHandoff, error)
	UpdateShiftHandoff(id string, mutator func(*ShiftHandoff) error) (ShiftHandoff, error)

	CreateSyncQueueItem(SyncQueueItem) (SyncQueueItem, error)
	UpdateSyncQueueItem(id string, mutator func(*SyncQueueItem) error) (SyncQueueItem, error)

	CreateConflictLog(ConflictLog) (ConflictLog, error)
	CreateAuditEvent(AuditEvent) (AuditEvent, error)
	CreateMigrationStatus(MigrationStatus) (MigrationStatus, error)

	PutAppConfig(AppConfig) error
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	ListEmployees() []Employee
	FindEmployee(id string) (Employee, bool)
	ListProducts() []Product
	FindProduct(id string) (Product, bool)
	ListTasks() []Task
	FindTask(id string) (Task, bool)
	ListBatches() []Batch
	FindBatch(id string) (Batch, bool)
	ListSessions() []Session
	FindSession(id string) (Session, bool)
	ListCompletions() []Completion
	FindCompletion(id string) (Completion, bool)
	ListQualityEvents() []QualityEvent
	ListOEECalculations() []OEECalculation
	ListAlerts() []Alert
	ListAndonEvents() []AndonEvent
	ListDailyArchives() []DailyArchive
	ListShiftHandoffs() []ShiftHandoff
	ListSyncQueueItems() []SyncQueueItem
	ListConflictLogs() []ConflictLog
	ListAuditEvents() []AuditEvent
	ListMigrationStatuses() []MigrationStatus
	GetAppConfig() (AppConfig, bool)
}

// PersistentStore is the minimal abstraction over durable backends. It
// mirrors the subset of store capabilities used directly by higher layers.
// RunInTransaction returns the changes committed by fn so the caller can
// fan them out to detached bookkeeping.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) ([]Change, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	GetEmployee(id string) (Employee, bool)
	ListEmployees() []Employee
	GetProduct(id string) (Product, bool)
	ListProducts() []Product
	GetTask(id string) (Task, bool)
	ListTasks() []Task
	GetBatch(id string) (Batch, bool)
	ListBatches() []Batch
	GetSession(id string) (Session, bool)
	ListSessions() []Session
	GetCompletion(id string) (Completion, bool)
	ListCompletions() []Completion
	ListSyncQueueItems() []SyncQueueItem
	ListAuditEvents() []AuditEvent
	ListMigrationStatuses() []MigrationStatus
	ListDailyArchives() []DailyArchive
}
