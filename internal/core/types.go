// Package core wires the persistence drivers, lifecycle hook fan-out,
// service operations, and read-side queries of the production tracker.
package core

import "floortrack/pkg/domain"

// Aliases re-export the domain types used throughout service signatures.
type (
	Employee        = domain.Employee
	Product         = domain.Product
	Task            = domain.Task
	Batch           = domain.Batch
	Session         = domain.Session
	Completion      = domain.Completion
	QualityEvent    = domain.QualityEvent
	OEECalculation  = domain.OEECalculation
	Alert           = domain.Alert
	AndonEvent      = domain.AndonEvent
	DailyArchive    = domain.DailyArchive
	ShiftHandoff    = domain.ShiftHandoff
	SyncQueueItem   = domain.SyncQueueItem
	ConflictLog     = domain.ConflictLog
	AuditEvent      = domain.AuditEvent
	MigrationStatus = domain.MigrationStatus
	AppConfig       = domain.AppConfig
	Change          = domain.Change
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)
