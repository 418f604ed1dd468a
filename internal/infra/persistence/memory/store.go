// Package memory provides the in-memory transactional store used directly
// for tests and ephemeral environments, and wrapped by the durable drivers
// that snapshot its state.
package memory

import (
	"context"
	"sync"
	"time"

	"floortrack/pkg/domain"
)

// Aliases keep method signatures concise while exposing domain types from
// this infra package.
type (
	// Employee is an alias of domain.Employee.
	Employee = domain.Employee
	// Product is an alias of domain.Product.
	Product = domain.Product
	// Task is an alias of domain.Task.
	Task = domain.Task
	// Batch is an alias of domain.Batch.
	Batch = domain.Batch
	// Session is an alias of domain.Session.
	Session = domain.Session
	// Completion is an alias of domain.Completion.
	Completion = domain.Completion
	// QualityEvent is an alias of domain.QualityEvent.
	QualityEvent = domain.QualityEvent
	// OEECalculation is an alias of domain.OEECalculation.
	OEECalculation = domain.OEECalculation
	// Alert is an alias of domain.Alert.
	Alert = domain.Alert
	// AndonEvent is an alias of domain.AndonEvent.
	AndonEvent = domain.AndonEvent
	// DailyArchive is an alias of domain.DailyArchive.
	DailyArchive = domain.DailyArchive
	// ShiftHandoff is an alias of domain.ShiftHandoff.
	ShiftHandoff = domain.ShiftHandoff
	// SyncQueueItem is an alias of domain.SyncQueueItem.
	SyncQueueItem = domain.SyncQueueItem
	// ConflictLog is an alias of domain.ConflictLog.
	ConflictLog = domain.ConflictLog
	// AuditEvent is an alias of domain.AuditEvent.
	AuditEvent = domain.AuditEvent
	// MigrationStatus is an alias of domain.MigrationStatus.
	MigrationStatus = domain.MigrationStatus
	// AppConfig is an alias of domain.AppConfig.
	AppConfig = domain.AppConfig
	// Change is an alias of domain.Change.
	Change = domain.Change
	// Clock is an alias of domain.Clock.
	Clock = domain.Clock
	// Transaction is an alias of domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView is an alias of domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore is an alias of domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)

// Compile-time contract assertion for the persistence interface.
var _ PersistentStore = (*Store)(nil)

type memoryState struct {
	employees    map[string]Employee
	products     map[string]Product
	tasks        map[string]Task
	batches      map[string]Batch
	sessions     map[string]Session
	completions  map[string]Completion
	quality      map[string]QualityEvent
	oee          map[string]OEECalculation
	alerts       map[string]Alert
	andon        map[string]AndonEvent
	archives     map[string]DailyArchive
	handoffs     map[string]ShiftHandoff
	syncQueue    map[string]SyncQueueItem
	conflicts    map[string]ConflictLog
	audit        map[string]AuditEvent
	migrations   map[string]MigrationStatus
	config       *AppConfig
}

// Snapshot is the serialisable representation of the in-memory state.
type Snapshot struct {
	Employees   map[string]Employee        `json:"employees"`
	Products    map[string]Product         `json:"products"`
	Tasks       map[string]Task            `json:"tasks"`
	Batches     map[string]Batch           `json:"batches"`
	Sessions    map[string]Session         `json:"sessions"`
	Completions map[string]Completion      `json:"completions"`
	Quality     map[string]QualityEvent    `json:"qualityEvents"`
	OEE         map[string]OEECalculation  `json:"oeeCalculations"`
	Alerts      map[string]Alert           `json:"alerts"`
	Andon       map[string]AndonEvent      `json:"andonEvents"`
	Archives    map[string]DailyArchive    `json:"dailyArchives"`
	Handoffs    map[string]ShiftHandoff    `json:"shiftHandoffs"`
	SyncQueue   map[string]SyncQueueItem   `json:"syncQueue"`
	Conflicts   map[string]ConflictLog     `json:"conflictLog"`
	Audit       map[string]AuditEvent      `json:"auditEvents"`
	Migrations  map[string]MigrationStatus `json:"migrations"`
	Config      *AppConfig                 `json:"config,omitempty"`
}

func newMemoryState() memoryState {
	return memoryState{
		employees:   map[string]Employee{},
		products:    map[string]Product{},
		tasks:       map[string]Task{},
		batches:     map[string]Batch{},
		sessions:    map[string]Session{},
		completions: map[string]Completion{},
		quality:     map[string]QualityEvent{},
		oee:         map[string]OEECalculation{},
		alerts:      map[string]Alert{},
		andon:       map[string]AndonEvent{},
		archives:    map[string]DailyArchive{},
		handoffs:    map[string]ShiftHandoff{},
		syncQueue:   map[string]SyncQueueItem{},
		conflicts:   map[string]ConflictLog{},
		audit:       map[string]AuditEvent{},
		migrations:  map[string]MigrationStatus{},
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	return append([]byte(nil), in...)
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneEmployee(e Employee) Employee {
	e.RBACRoles = cloneStrings(e.RBACRoles)
	return e
}

func cloneProduct(p Product) Product { return p }
func cloneTask(t Task) Task          { return t }

func cloneBatch(b Batch) Batch {
	b.Genealogy = cloneStrings(b.Genealogy)
	b.Closed = cloneTimePtr(b.Closed)
	return b
}

func cloneSession(s Session) Session {
	s.EndTime = cloneTimePtr(s.EndTime)
	return s
}

func cloneCompletion(c Completion) Completion {
	c.DefectCodes = cloneStrings(c.DefectCodes)
	return c
}

func cloneQualityEvent(q QualityEvent) QualityEvent { return q }

func cloneOEE(o OEECalculation) OEECalculation {
	o.BatchIDs = cloneStrings(o.BatchIDs)
	return o
}

func cloneAlert(a Alert) Alert {
	if a.Metadata != nil {
		md := make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			md[k] = v
		}
		a.Metadata = md
	}
	return a
}

func cloneAndon(a AndonEvent) AndonEvent {
	a.Resolved = cloneTimePtr(a.Resolved)
	return a
}

func cloneArchive(a DailyArchive) DailyArchive {
	a.CompletionIDs = cloneStrings(a.CompletionIDs)
	a.SessionIDs = cloneStrings(a.SessionIDs)
	a.BatchIDs = cloneStrings(a.BatchIDs)
	a.ShiftHandoffIDs = cloneStrings(a.ShiftHandoffIDs)
	return a
}

func cloneHandoff(h ShiftHandoff) ShiftHandoff {
	h.ActiveBatches = cloneStrings(h.ActiveBatches)
	h.OpenSessions = cloneStrings(h.OpenSessions)
	h.PendingIssues = cloneStrings(h.PendingIssues)
	return h
}

func cloneSyncItem(i SyncQueueItem) SyncQueueItem {
	i.Payload = cloneBytes(i.Payload)
	i.LastAttempt = cloneTimePtr(i.LastAttempt)
	return i
}

func cloneConflict(c ConflictLog) ConflictLog {
	c.LocalVersion = cloneBytes(c.LocalVersion)
	c.RemoteVersion = cloneBytes(c.RemoteVersion)
	return c
}

func cloneAudit(a AuditEvent) AuditEvent {
	a.Snapshot = cloneBytes(a.Snapshot)
	if a.Metadata != nil {
		md := make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			md[k] = v
		}
		a.Metadata = md
	}
	return a
}

func cloneMigration(m MigrationStatus) MigrationStatus {
	m.Errors = cloneStrings(m.Errors)
	return m
}

func cloneConfig(c *AppConfig) *AppConfig {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Shifts != nil {
		cp.Shifts = make(map[string]domain.ShiftWindow, len(c.Shifts))
		for k, v := range c.Shifts {
			cp.Shifts[k] = v
		}
	}
	return &cp
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.employees {
		cloned.employees[k] = cloneEmployee(v)
	}
	for k, v := range s.products {
		cloned.products[k] = cloneProduct(v)
	}
	for k, v := range s.tasks {
		cloned.tasks[k] = cloneTask(v)
	}
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.sessions {
		cloned.sessions[k] = cloneSession(v)
	}
	for k, v := range s.completions {
		cloned.completions[k] = cloneCompletion(v)
	}
	for k, v := range s.quality {
		cloned.quality[k] = cloneQualityEvent(v)
	}
	for k, v := range s.oee {
		cloned.oee[k] = cloneOEE(v)
	}
	for k, v := range s.alerts {
		cloned.alerts[k] = cloneAlert(v)
	}
	for k, v := range s.andon {
		cloned.andon[k] = cloneAndon(v)
	}
	for k, v := range s.archives {
		cloned.archives[k] = cloneArchive(v)
	}
	for k, v := range s.handoffs {
		cloned.handoffs[k] = cloneHandoff(v)
	}
	for k, v := range s.syncQueue {
		cloned.syncQueue[k] = cloneSyncItem(v)
	}
	for k, v := range s.conflicts {
		cloned.conflicts[k] = cloneConflict(v)
	}
	for k, v := range s.audit {
		cloned.audit[k] = cloneAudit(v)
	}
	for k, v := range s.migrations {
		cloned.migrations[k] = cloneMigration(v)
	}
	cloned.config = cloneConfig(s.config)
	return cloned
}

// Store is the in-memory transactional store. Durable drivers embed it and
// snapshot its state after each committed transaction.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	clock Clock
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store. A nil clock falls back to a
// process-local identity source.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = newFallbackClock()
	}
	return &Store{
		state: newMemoryState(),
		clock: clock,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// transaction is a mutation set applied to a cloned state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state for reads within the scope.
func (tx *transaction) Snapshot() TransactionView {
	return newView(&tx.state)
}

// RunInTransaction executes fn within a transactional copy of the store
// state and commits on success, returning the recorded changes.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return nil, err
	}
	s.state = tx.state
	return tx.changes, nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newView(&snapshot))
}

// ImportState replaces committed state from a snapshot (driver load path).
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snap.Employees {
		state.employees[k] = v
	}
	for k, v := range snap.Products {
		state.products[k] = v
	}
	for k, v := range snap.Tasks {
		state.tasks[k] = v
	}
	for k, v := range snap.Batches {
		state.batches[k] = v
	}
	for k, v := range snap.Sessions {
		state.sessions[k] = v
	}
	for k, v := range snap.Completions {
		state.completions[k] = v
	}
	for k, v := range snap.Quality {
		state.quality[k] = v
	}
	for k, v := range snap.OEE {
		state.oee[k] = v
	}
	for k, v := range snap.Alerts {
		state.alerts[k] = v
	}
	for k, v := range snap.Andon {
		state.andon[k] = v
	}
	for k, v := range snap.Archives {
		state.archives[k] = v
	}
	for k, v := range snap.Handoffs {
		state.handoffs[k] = v
	}
	for k, v := range snap.SyncQueue {
		state.syncQueue[k] = v
	}
	for k, v := range snap.Conflicts {
		state.conflicts[k] = v
	}
	for k, v := range snap.Audit {
		state.audit[k] = v
	}
	for k, v := range snap.Migrations {
		state.migrations[k] = v
	}
	state.config = snap.Config
	s.state = state
}

// ExportState copies committed state into a serialisable snapshot.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state.clone()
	return Snapshot{
		Employees:   st.employees,
		Products:    st.products,
		Tasks:       st.tasks,
		Batches:     st.batches,
		Sessions:    st.sessions,
		Completions: st.completions,
		Quality:     st.quality,
		OEE:         st.oee,
		Alerts:      st.alerts,
		Andon:       st.andon,
		Archives:    st.archives,
		Handoffs:    st.handoffs,
		SyncQueue:   st.syncQueue,
		Conflicts:   st.conflicts,
		Audit:       st.audit,
		Migrations:  st.migrations,
		Config:      st.config,
	}
}
