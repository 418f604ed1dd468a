// Package domain defines the persistent entities, value types, and
// persistence primitives of the floortrack production core.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core schema.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityEmployee identifies an employee record.
	EntityEmployee EntityType = "employee"
	// EntityProduct identifies a product record.
	EntityProduct EntityType = "product"
	// EntityTask identifies a task record.
	EntityTask EntityType = "task"
	// EntityBatch identifies a production batch record.
	EntityBatch EntityType = "batch"
	// EntitySession identifies an open work interval record.
	EntitySession EntityType = "session"
	// EntityCompletion identifies an immutable production record.
	EntityCompletion EntityType = "completion"
	// EntityQualityEvent identifies a quality event record.
	EntityQualityEvent EntityType = "quality_event"
	// EntityOEECalculation identifies a daily/shift OEE aggregate.
	EntityOEECalculation EntityType = "oee_calculation"
	// EntityAlert identifies an alert record.
	EntityAlert EntityType = "alert"
	// EntityAndonEvent identifies an andon call record.
	EntityAndonEvent EntityType = "andon_event"
	// EntityDailyArchive identifies an end-of-day archive record.
	EntityDailyArchive EntityType = "daily_archive"
	// EntityShiftHandoff identifies a shift handoff record.
	EntityShiftHandoff EntityType = "shift_handoff"
	// EntitySyncQueueItem identifies an outbox entry awaiting outward sync.
	EntitySyncQueueItem EntityType = "sync_queue_item"
	// EntityConflictLog identifies a recorded sync conflict.
	EntityConflictLog EntityType = "conflict_log"
	// EntityAuditEvent identifies an audit trail entry.
	EntityAuditEvent EntityType = "audit_event"
	// EntityMigrationStatus identifies a legacy migration run record.
	EntityMigrationStatus EntityType = "migration_status"
	// EntityAppConfig identifies the versioned application configuration.
	EntityAppConfig EntityType = "app_config"
)

// Role enumerates employee roles on the shop floor.
type Role string

// Recognised employee roles. Unknown legacy values map to RoleOperator.
const (
	RoleOperator     Role = "Operator"
	RoleLeadOperator Role = "Lead Operator"
	RoleSupervisor   Role = "Supervisor"
	RoleQA           Role = "QA"
	RoleManager      Role = "Manager"
)

// Shift enumerates working shifts.
type Shift string

// Recognised shifts. Unknown legacy values map to ShiftDay.
const (
	ShiftDay   Shift = "Day"
	ShiftNight Shift = "Night"
	ShiftSwing Shift = "Swing"
)

// ProductType enumerates product families.
type ProductType string

// Recognised product types. Unknown legacy values map to ProductCartridge.
const (
	ProductCartridge  ProductType = "Cartridge"
	ProductAIODevice  ProductType = "AIO Device"
	ProductDisposable ProductType = "Disposable"
	ProductPod        ProductType = "Pod"
)

// BatchStatus enumerates the batch state machine.
type BatchStatus string

// Batch states. Open and InProgress batches accept production.
const (
	BatchOpen       BatchStatus = "Open"
	BatchInProgress BatchStatus = "InProgress"
	BatchCompleted  BatchStatus = "Completed"
	BatchClosed     BatchStatus = "Closed"
	BatchOnHold     BatchStatus = "OnHold"
)

// SyncStatus tracks the outward replication state of a record.
type SyncStatus string

// Record sync states. Any local mutation resets a record to SyncPending.
const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
)

// QueueStatus tracks the delivery state of a sync queue item.
type QueueStatus string

// Queue item states driven by the outward sync transport.
const (
	QueuePending QueueStatus = "pending"
	QueueSyncing QueueStatus = "syncing"
	QueueSuccess QueueStatus = "success"
	QueueFailed  QueueStatus = "failed"
)

// QualityEventType enumerates quality event categories.
type QualityEventType string

// Quality event categories.
const (
	QualityScrap  QualityEventType = "scrap"
	QualityRework QualityEventType = "rework"
	QualityHold   QualityEventType = "hold"
	QualityPass   QualityEventType = "pass"
)

// AlertType enumerates alert categories.
type AlertType string

// Alert categories surfaced to the floor.
const (
	AlertEfficiency AlertType = "efficiency"
	AlertDowntime   AlertType = "downtime"
	AlertQuality    AlertType = "quality"
	AlertBatch      AlertType = "batch"
	AlertSystem     AlertType = "system"
)

// AlertSeverity grades an alert.
type AlertSeverity string

// Alert severities.
const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AndonType enumerates andon call reasons.
type AndonType string

// Andon call reasons.
const (
	AndonHelp        AndonType = "help"
	AndonMaintenance AndonType = "maintenance"
	AndonQuality     AndonType = "quality"
	AndonMaterial    AndonType = "material"
	AndonTooling     AndonType = "tooling"
)

// AndonStatus tracks the lifecycle of an andon call.
type AndonStatus string

// Andon call states.
const (
	AndonActive       AndonStatus = "active"
	AndonAcknowledged AndonStatus = "acknowledged"
	AndonResolved     AndonStatus = "resolved"
)

// HandoffStatus tracks the lifecycle of a shift handoff.
type HandoffStatus string

// Shift handoff states.
const (
	HandoffPending      HandoffStatus = "pending"
	HandoffAcknowledged HandoffStatus = "acknowledged"
	HandoffCompleted    HandoffStatus = "completed"
)

// ConflictResolution enumerates how a sync conflict was settled.
type ConflictResolution string

// Conflict resolutions. The assumed remote policy is last-write-wins by
// Lamport timestamp with a device-ID tie-break (see CompareSyncOrder).
const (
	ResolutionLocalWins      ConflictResolution = "local_wins"
	ResolutionRemoteWins     ConflictResolution = "remote_wins"
	ResolutionMerged         ConflictResolution = "merged"
	ResolutionManualRequired ConflictResolution = "manual_required"
)

// SyncMeta carries the replication metadata stamped onto sessions and
// completions by the lifecycle hooks.
type SyncMeta struct {
	DeviceID         string     `json:"deviceId,omitempty"`
	LamportTimestamp int64      `json:"lamportTimestamp"`
	LastModified     time.Time  `json:"lastModified"`
	SyncStatus       SyncStatus `json:"syncStatus"`
}

// Employee is a shop-floor worker.
type Employee struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Shift     Shift     `json:"shift"`
	Active    bool      `json:"active"`
	RBACRoles []string  `json:"rbacRoles"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// Product is a manufactured item family referenced by tasks and batches.
type Product struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Type    ProductType `json:"type"`
	Active  bool        `json:"active"`
	Created time.Time   `json:"created"`
	Updated time.Time   `json:"updated"`
}

// Task is a unit of work on a product with an hourly quota.
type Task struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Quota       float64   `json:"quota"` // units per hour, > 0
	ProductID   string    `json:"productId"`
	Description string    `json:"description,omitempty"`
	CycleTime   float64   `json:"standardCycleTime,omitempty"` // seconds per unit
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// Batch is a tracked production run with a target unit count and genealogy
// links to predecessor batches.
type Batch struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	LotCode       string      `json:"lotCode,omitempty"`
	ProductID     string      `json:"productId"`
	ExpectedUnits int         `json:"expectedUnits"`
	ActualUnits   int         `json:"actualUnits"`
	Status        BatchStatus `json:"status"`
	Genealogy     []string    `json:"genealogy"`
	Notes         string      `json:"notes,omitempty"`
	Created       time.Time   `json:"created"`
	Updated       time.Time   `json:"updated"`
	Closed        *time.Time  `json:"closed,omitempty"`
}

// Session is one open work interval for an employee against a task and batch.
type Session struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employeeId"`
	TaskID     string     `json:"taskId"`
	ProductID  string     `json:"productId"`
	BatchID    string     `json:"batchId"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	ClockedOut bool       `json:"clockedOut"`
	Created    time.Time  `json:"created"`
	SyncMeta
}

// Completion is an immutable production record closing out all or part of a
// session. Duration, UPH, and Efficiency are derived; see
// ComputeCompletionMetrics.
type Completion struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	EmployeeID string `json:"employeeId"`
	TaskID     string `json:"taskId"`
	ProductID  string `json:"productId"`
	BatchID    string `json:"batchId"`

	Quantity    int `json:"quantity"`
	GoodUnits   int `json:"goodUnits"`
	ScrapUnits  int `json:"scrapUnits"`
	ReworkUnits int `json:"reworkUnits"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  int64     `json:"duration"` // milliseconds

	UPH        float64 `json:"uph"`
	Efficiency float64 `json:"efficiency"` // percentage vs task quota, rounded

	QualityReason string   `json:"qualityReason,omitempty"`
	DefectCodes   []string `json:"defectCodes"`
	BarcodeScan   string   `json:"barcodeScan,omitempty"`

	Created time.Time `json:"created"`
	SyncMeta
}

// QualityEvent is an append-only scrap/rework/hold/pass record.
type QualityEvent struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"sessionId"`
	CompletionID string           `json:"completionId,omitempty"`
	BatchID      string           `json:"batchId"`
	EmployeeID   string           `json:"employeeId"`
	Type         QualityEventType `json:"type"`
	Reason       string           `json:"reason"`
	DefectCode   string           `json:"defectCode"`
	Quantity     int              `json:"quantity"`
	Timestamp    time.Time        `json:"timestamp"`
	Notes        string           `json:"notes,omitempty"`
	Corrective   string           `json:"correctiveAction,omitempty"`
}

// OEECalculation is an append-only daily/shift aggregate of
// availability x performance x quality.
type OEECalculation struct {
	ID    string `json:"id"`
	Date  string `json:"date"` // YYYY-MM-DD
	Shift Shift  `json:"shift"`

	PlannedProductionTime float64 `json:"plannedProductionTime"` // minutes
	ActualProductionTime  float64 `json:"actualProductionTime"`  // minutes
	Downtime              float64 `json:"downtime"`              // minutes
	Availability          float64 `json:"availability"`          // percentage

	IdealCycleTime     float64 `json:"idealCycleTime"` // seconds per unit
	TotalUnitsProduced int     `json:"totalUnitsProduced"`
	RunTime            float64 `json:"runTime"`     // minutes
	Performance        float64 `json:"performance"` // percentage

	GoodUnits  int     `json:"goodUnits"`
	TotalUnits int     `json:"totalUnits"`
	Quality    float64 `json:"quality"` // percentage (FPY)

	OEE float64 `json:"oee"` // percentage

	Calculated time.Time `json:"calculated"`
	BatchIDs   []string  `json:"batchIds"`
}

// Alert is a floor notification raised by threshold checks.
type Alert struct {
	ID           string         `json:"id"`
	Type         AlertType      `json:"type"`
	Severity     AlertSeverity  `json:"severity"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	Acknowledged bool           `json:"acknowledged"`
	EmployeeID   string         `json:"employeeId,omitempty"`
	BatchID      string         `json:"batchId,omitempty"`
	SessionID    string         `json:"sessionId,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AndonEvent is a workstation help call.
type AndonEvent struct {
	ID          string      `json:"id"`
	Workstation string      `json:"workstation"`
	EmployeeID  string      `json:"employeeId"`
	Type        AndonType   `json:"type"`
	Status      AndonStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	Resolved    *time.Time  `json:"resolvedTimestamp,omitempty"`
	ResolvedBy  string      `json:"resolvedBy,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

// DailyArchive is the end-of-day summary of production activity.
type DailyArchive struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Timestamp time.Time `json:"timestamp"`

	CompletionIDs []string `json:"completionIds"`
	SessionIDs    []string `json:"sessionIds"`
	BatchIDs      []string `json:"batchIds"`

	TotalUnits        int     `json:"totalUnits"`
	TotalHours        float64 `json:"totalHours"`
	AverageEfficiency float64 `json:"averageEfficiency"`
	OEE               float64 `json:"oee"`
	FPY               float64 `json:"fpy"`

	ShiftNotes      string   `json:"shiftNotes,omitempty"`
	ShiftHandoffIDs []string `json:"shiftHandoffIds"`

	MigratedFromLegacy bool `json:"migratedFromLocalStorage"`
}

// ShiftHandoff records the transfer of open work between shifts.
type ShiftHandoff struct {
	ID            string        `json:"id"`
	FromShift     Shift         `json:"fromShift"`
	ToShift       Shift         `json:"toShift"`
	Timestamp     time.Time     `json:"timestamp"`
	HandedOffBy   string        `json:"handedOffBy"`
	ReceivedBy    string        `json:"receivedBy,omitempty"`
	ActiveBatches []string      `json:"activeBatches"`
	OpenSessions  []string      `json:"openSessions"`
	PendingIssues []string      `json:"pendingIssues"`
	Notes         string        `json:"notes"`
	Status        HandoffStatus `json:"status"`
}

// SyncQueueItem is one outbox entry per local mutation. The outward sync
// transport drains items in Lamport order and owns the status transitions
// pending -> syncing -> success|failed.
type SyncQueueItem struct {
	ID               string          `json:"id"`
	EntityType       EntityType      `json:"entityType"`
	EntityID         string          `json:"entityId"`
	Operation        Action          `json:"operation"`
	Payload          json.RawMessage `json:"data"`
	LamportTimestamp int64           `json:"lamportTimestamp"`
	DeviceID         string          `json:"deviceId"`
	Attempts         int             `json:"attempts"`
	LastAttempt      *time.Time      `json:"lastAttempt,omitempty"`
	Status           QueueStatus     `json:"status"`
	Error            string          `json:"error,omitempty"`
}

// ConflictLog is an append-only record of a reconciliation conflict.
type ConflictLog struct {
	ID            string             `json:"id"`
	EntityType    EntityType         `json:"entityType"`
	EntityID      string             `json:"entityId"`
	Timestamp     time.Time          `json:"timestamp"`
	LocalVersion  json.RawMessage    `json:"localVersion"`
	RemoteVersion json.RawMessage    `json:"remoteVersion"`
	Resolution    ConflictResolution `json:"resolution"`
	ResolvedBy    string             `json:"resolvedBy,omitempty"`
	Notes         string             `json:"notes,omitempty"`
}

// AuditEvent is an append-only audit trail entry.
type AuditEvent struct {
	ID         string            `json:"id"`
	EntityType EntityType        `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Operation  Action            `json:"operation"`
	EmployeeID string            `json:"employeeId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Snapshot   json.RawMessage   `json:"snapshot,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MigrationStatus records one legacy migration run. Its existence is the
// idempotency guard: a recorded run, successful or not, is never repeated.
type MigrationStatus struct {
	ID              string    `json:"id"`
	Version         string    `json:"version"`
	MigrationDate   time.Time `json:"migrationDate"`
	Success         bool      `json:"success"`
	RecordsMigrated int       `json:"recordsMigrated"`
	Errors          []string  `json:"errors"`
	BackupCreated   bool      `json:"backupCreated"`
	BackupPath      string    `json:"backupPath,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

// ShiftWindow describes a configured shift span in HH:MM local time.
type ShiftWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name"`
}

// Thresholds holds alerting thresholds.
type Thresholds struct {
	LowEfficiency float64 `json:"lowEfficiency"` // percentage
	LongSession   float64 `json:"longSession"`   // minutes
	HighScrapRate float64 `json:"highScrapRate"` // percentage
	OEETarget     float64 `json:"oeeTarget"`     // percentage
	FPYTarget     float64 `json:"fpyTarget"`     // percentage
}

// SyncSettings holds outward sync transport settings.
type SyncSettings struct {
	Enabled       bool   `json:"enabled"`
	Endpoint      string `json:"endpoint,omitempty"`
	RetryAttempts int    `json:"retryAttempts"`
	RetryDelayMS  int    `json:"retryDelay"`
	BatchSize     int    `json:"batchSize"`
}

// AppConfig is the versioned application configuration row.
type AppConfig struct {
	Version    string                 `json:"version"`
	Shifts     map[string]ShiftWindow `json:"shifts"`
	Thresholds Thresholds             `json:"thresholds"`
	Sync       SyncSettings           `json:"sync"`
}
