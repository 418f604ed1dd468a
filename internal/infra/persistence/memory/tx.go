package memory

import (
	"crypto/rand"
	"encoding/hex"
	"reflect"
	"sync"
	"time"

	"floortrack/pkg/domain"
)

// fallbackClock keeps stores usable without a wired identity service
// (tests, throwaway tooling). Device ID and counter are process-local only;
// production wiring injects the persistent ident clock instead.
type fallbackClock struct {
	mu     sync.Mutex
	last   int64
	device string
}

func newFallbackClock() *fallbackClock {
	return &fallbackClock{device: randomHex()}
}

func randomHex() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

func (c *fallbackClock) NewID() string    { return randomHex() }
func (c *fallbackClock) DeviceID() string { return c.device }

func (c *fallbackClock) NextLamport() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := time.Now().UnixMilli()
	if next <= c.last {
		next = c.last + 1
	}
	c.last = next
	return next
}

// stampSyncMeta applies the creation-time replication metadata required on
// sessions and completions.
func (tx *transaction) stampSyncMeta(meta *domain.SyncMeta) {
	clock := tx.store.clock
	if meta.DeviceID == "" {
		meta.DeviceID = clock.DeviceID()
	}
	if meta.LamportTimestamp == 0 {
		meta.LamportTimestamp = clock.NextLamport()
	}
	if meta.LastModified.IsZero() {
		meta.LastModified = tx.now
	}
	if meta.SyncStatus == "" {
		meta.SyncStatus = domain.SyncPending
	}
}

// touchSyncMeta invalidates prior sync state after a content update.
func (tx *transaction) touchSyncMeta(meta *domain.SyncMeta) {
	meta.LastModified = tx.now
	meta.LamportTimestamp = tx.store.clock.NextLamport()
	meta.SyncStatus = domain.SyncPending
}

// sessionContentChanged reports whether an update touched anything besides
// the session's sync metadata. Pure sync-state writes, including repeated
// writes of the same status, must not restamp or the outbox would loop.
func sessionContentChanged(before, after Session) bool {
	before.SyncMeta = domain.SyncMeta{}
	after.SyncMeta = domain.SyncMeta{}
	return !reflect.DeepEqual(before, after)
}

// completionContentChanged is sessionContentChanged for completions.
func completionContentChanged(before, after Completion) bool {
	before.SyncMeta = domain.SyncMeta{}
	after.SyncMeta = domain.SyncMeta{}
	return !reflect.DeepEqual(before, after)
}

func (tx *transaction) ensureID(id *string) {
	if *id == "" {
		*id = tx.store.clock.NewID()
	}
}

// CreateEmployee stores a new employee.
func (tx *transaction) CreateEmployee(e Employee) (Employee, error) {
	tx.ensureID(&e.ID)
	if _, exists := tx.state.employees[e.ID]; exists {
		return Employee{}, domain.DuplicateKeyError{Entity: domain.EntityEmployee, ID: e.ID}
	}
	if e.Created.IsZero() {
		e.Created = tx.now
	}
	e.Updated = tx.now
	tx.state.employees[e.ID] = cloneEmployee(e)
	tx.recordChange(Change{Entity: domain.EntityEmployee, Action: domain.ActionCreate, ID: e.ID, After: cloneEmployee(e)})
	return cloneEmployee(e), nil
}

// UpdateEmployee mutates an employee using the provided mutator.
func (tx *transaction) UpdateEmployee(id string, mutator func(*Employee) error) (Employee, error) {
	current, ok := tx.state.employees[id]
	if !ok {
		return Employee{}, domain.NotFoundError{Entity: domain.EntityEmployee, ID: id}
	}
	before := cloneEmployee(current)
	if err := mutator(&current); err != nil {
		return Employee{}, err
	}
	current.ID = id
	current.Updated = tx.now
	tx.state.employees[id] = cloneEmployee(current)
	tx.recordChange(Change{Entity: domain.EntityEmployee, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneEmployee(current)})
	return cloneEmployee(current), nil
}

// DeleteEmployee removes an employee record.
func (tx *transaction) DeleteEmployee(id string) error {
	current, ok := tx.state.employees[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityEmployee, ID: id}
	}
	delete(tx.state.employees, id)
	tx.recordChange(Change{Entity: domain.EntityEmployee, Action: domain.ActionDelete, ID: id, Before: cloneEmployee(current)})
	return nil
}

// CreateProduct stores a new product.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	tx.ensureID(&p.ID)
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, domain.DuplicateKeyError{Entity: domain.EntityProduct, ID: p.ID}
	}
	if p.Created.IsZero() {
		p.Created = tx.now
	}
	p.Updated = tx.now
	tx.state.products[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, ID: p.ID, After: p})
	return p, nil
}

// UpdateProduct mutates a product.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, domain.NotFoundError{Entity: domain.EntityProduct, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.Updated = tx.now
	tx.state.products[id] = current
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, ID: id, Before: before, After: current})
	return current, nil
}

// DeleteProduct removes a product record.
func (tx *transaction) DeleteProduct(id string) error {
	current, ok := tx.state.products[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProduct, ID: id}
	}
	delete(tx.state.products, id)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, ID: id, Before: current})
	return nil
}

// CreateTask stores a new task.
func (tx *transaction) CreateTask(t Task) (Task, error) {
	tx.ensureID(&t.ID)
	if _, exists := tx.state.tasks[t.ID]; exists {
		return Task{}, domain.DuplicateKeyError{Entity: domain.EntityTask, ID: t.ID}
	}
	if t.Created.IsZero() {
		t.Created = tx.now
	}
	t.Updated = tx.now
	tx.state.tasks[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionCreate, ID: t.ID, After: t})
	return t, nil
}

// UpdateTask mutates a task.
func (tx *transaction) UpdateTask(id string, mutator func(*Task) error) (Task, error) {
	current, ok := tx.state.tasks[id]
	if !ok {
		return Task{}, domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Task{}, err
	}
	current.ID = id
	current.Updated = tx.now
	tx.state.tasks[id] = current
	tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionUpdate, ID: id, Before: before, After: current})
	return current, nil
}

// DeleteTask removes a task record.
func (tx *transaction) DeleteTask(id string) error {
	current, ok := tx.state.tasks[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	delete(tx.state.tasks, id)
	tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionDelete, ID: id, Before: current})
	return nil
}

// CreateBatch stores a new batch.
func (tx *transaction) CreateBatch(b Batch) (Batch, error) {
	tx.ensureID(&b.ID)
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, domain.DuplicateKeyError{Entity: domain.EntityBatch, ID: b.ID}
	}
	if b.Created.IsZero() {
		b.Created = tx.now
	}
	b.Updated = tx.now
	if b.Status == "" {
		b.Status = domain.BatchOpen
	}
	if b.Genealogy == nil {
		b.Genealogy = []string{}
	}
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, ID: b.ID, After: cloneBatch(b)})
	return cloneBatch(b), nil
}

// UpdateBatch mutates a batch.
func (tx *transaction) UpdateBatch(id string, mutator func(*Batch) error) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return Batch{}, err
	}
	current.ID = id
	current.Updated = tx.now
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneBatch(current)})
	return cloneBatch(current), nil
}

// DeleteBatch removes a batch record.
func (tx *transaction) DeleteBatch(id string) error {
	current, ok := tx.state.batches[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	delete(tx.state.batches, id)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionDelete, ID: id, Before: cloneBatch(current)})
	return nil
}

// CreateSession stores a new session, stamping device, Lamport, and sync
// metadata before the record lands.
func (tx *transaction) CreateSession(s Session) (Session, error) {
	tx.ensureID(&s.ID)
	if _, exists := tx.state.sessions[s.ID]; exists {
		return Session{}, domain.DuplicateKeyError{Entity: domain.EntitySession, ID: s.ID}
	}
	if s.Created.IsZero() {
		s.Created = tx.now
	}
	if s.StartTime.IsZero() {
		s.StartTime = tx.now
	}
	tx.stampSyncMeta(&s.SyncMeta)
	tx.state.sessions[s.ID] = cloneSession(s)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionCreate, ID: s.ID, After: cloneSession(s)})
	return cloneSession(s), nil
}

// UpdateSession mutates a session. A content edit re-stamps lastModified,
// bumps the Lamport clock, and resets syncStatus to pending.
func (tx *transaction) UpdateSession(id string, mutator func(*Session) error) (Session, error) {
	current, ok := tx.state.sessions[id]
	if !ok {
		return Session{}, domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	before := cloneSession(current)
	if err := mutator(&current); err != nil {
		return Session{}, err
	}
	current.ID = id
	// A mutation that only touches sync state must not restamp, or marking
	// a record synced would immediately re-dirty it.
	switch {
	case sessionContentChanged(before, current):
		tx.touchSyncMeta(&current.SyncMeta)
	case current.SyncStatus != before.SyncStatus:
		current.LastModified = tx.now
	}
	tx.state.sessions[id] = cloneSession(current)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneSession(current)})
	return cloneSession(current), nil
}

// DeleteSession removes a session record.
func (tx *transaction) DeleteSession(id string) error {
	current, ok := tx.state.sessions[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	delete(tx.state.sessions, id)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionDelete, ID: id, Before: cloneSession(current)})
	return nil
}

// CreateCompletion stores a new completion, stamping sync metadata and
// deriving duration and UPH when the caller supplied neither. Migrated
// legacy rows keep their recorded metrics. Efficiency is derived against
// the task quota by the service layer before insert.
func (tx *transaction) CreateCompletion(c Completion) (Completion, error) {
	tx.ensureID(&c.ID)
	if _, exists := tx.state.completions[c.ID]; exists {
		return Completion{}, domain.DuplicateKeyError{Entity: domain.EntityCompletion, ID: c.ID}
	}
	if c.Created.IsZero() {
		c.Created = tx.now
	}
	tx.stampSyncMeta(&c.SyncMeta)
	if c.Duration == 0 && c.UPH == 0 && !c.StartTime.IsZero() && !c.EndTime.IsZero() {
		m := domain.ComputeCompletionMetrics(c.StartTime, c.EndTime, c.Quantity, 0)
		c.Duration = m.Duration
		c.UPH = m.UPH
	}
	if c.DefectCodes == nil {
		c.DefectCodes = []string{}
	}
	tx.state.completions[c.ID] = cloneCompletion(c)
	tx.recordChange(Change{Entity: domain.EntityCompletion, Action: domain.ActionCreate, ID: c.ID, After: cloneCompletion(c)})
	return cloneCompletion(c), nil
}

// UpdateCompletion mutates a completion, re-stamping sync metadata on
// content edits.
func (tx *transaction) UpdateCompletion(id string, mutator func(*Completion) error) (Completion, error) {
	current, ok := tx.state.completions[id]
	if !ok {
		return Completion{}, domain.NotFoundError{Entity: domain.EntityCompletion, ID: id}
	}
	before := cloneCompletion(current)
	if err := mutator(&current); err != nil {
		return Completion{}, err
	}
	current.ID = id
	switch {
	case completionContentChanged(before, current):
		tx.touchSyncMeta(&current.SyncMeta)
	case current.SyncStatus != before.SyncStatus:
		current.LastModified = tx.now
	}
	tx.state.completions[id] = cloneCompletion(current)
	tx.recordChange(Change{Entity: domain.EntityCompletion, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneCompletion(current)})
	return cloneCompletion(current), nil
}

// CreateQualityEvent appends a quality event.
func (tx *transaction) CreateQualityEvent(q QualityEvent) (QualityEvent, error) {
	tx.ensureID(&q.ID)
	if _, exists := tx.state.quality[q.ID]; exists {
		return QualityEvent{}, domain.DuplicateKeyError{Entity: domain.EntityQualityEvent, ID: q.ID}
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = tx.now
	}
	tx.state.quality[q.ID] = q
	tx.recordChange(Change{Entity: domain.EntityQualityEvent, Action: domain.ActionCreate, ID: q.ID, After: q})
	return q, nil
}

// CreateOEECalculation appends a daily/shift OEE aggregate.
func (tx *transaction) CreateOEECalculation(o OEECalculation) (OEECalculation, error) {
	tx.ensureID(&o.ID)
	if _, exists := tx.state.oee[o.ID]; exists {
		return OEECalculation{}, domain.DuplicateKeyError{Entity: domain.EntityOEECalculation, ID: o.ID}
	}
	if o.Calculated.IsZero() {
		o.Calculated = tx.now
	}
	tx.state.oee[o.ID] = cloneOEE(o)
	tx.recordChange(Change{Entity: domain.EntityOEECalculation, Action: domain.ActionCreate, ID: o.ID, After: cloneOEE(o)})
	return cloneOEE(o), nil
}

// CreateAlert stores a new alert.
func (tx *transaction) CreateAlert(a Alert) (Alert, error) {
	tx.ensureID(&a.ID)
	if _, exists := tx.state.alerts[a.ID]; exists {
		return Alert{}, domain.DuplicateKeyError{Entity: domain.EntityAlert, ID: a.ID}
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = tx.now
	}
	tx.state.alerts[a.ID] = cloneAlert(a)
	tx.recordChange(Change{Entity: domain.EntityAlert, Action: domain.ActionCreate, ID: a.ID, After: cloneAlert(a)})
	return cloneAlert(a), nil
}

// UpdateAlert mutates an alert (acknowledgement path).
func (tx *transaction) UpdateAlert(id string, mutator func(*Alert) error) (Alert, error) {
	current, ok := tx.state.alerts[id]
	if !ok {
		return Alert{}, domain.NotFoundError{Entity: domain.EntityAlert, ID: id}
	}
	before := cloneAlert(current)
	if err := mutator(&current); err != nil {
		return Alert{}, err
	}
	current.ID = id
	tx.state.alerts[id] = cloneAlert(current)
	tx.recordChange(Change{Entity: domain.EntityAlert, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneAlert(current)})
	return cloneAlert(current), nil
}

// CreateAndonEvent stores a new andon call.
func (tx *transaction) CreateAndonEvent(a AndonEvent) (AndonEvent, error) {
	tx.ensureID(&a.ID)
	if _, exists := tx.state.andon[a.ID]; exists {
		return AndonEvent{}, domain.DuplicateKeyError{Entity: domain.EntityAndonEvent, ID: a.ID}
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = tx.now
	}
	if a.Status == "" {
		a.Status = domain.AndonActive
	}
	tx.state.andon[a.ID] = cloneAndon(a)
	tx.recordChange(Change{Entity: domain.EntityAndonEvent, Action: domain.ActionCreate, ID: a.ID, After: cloneAndon(a)})
	return cloneAndon(a), nil
}

// UpdateAndonEvent mutates an andon call.
func (tx *transaction) UpdateAndonEvent(id string, mutator func(*AndonEvent) error) (AndonEvent, error) {
	current, ok := tx.state.andon[id]
	if !ok {
		return AndonEvent{}, domain.NotFoundError{Entity: domain.EntityAndonEvent, ID: id}
	}
	before := cloneAndon(current)
	if err := mutator(&current); err != nil {
		return AndonEvent{}, err
	}
	current.ID = id
	tx.state.andon[id] = cloneAndon(current)
	tx.recordChange(Change{Entity: domain.EntityAndonEvent, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneAndon(current)})
	return cloneAndon(current), nil
}

// CreateDailyArchive appends an end-of-day archive.
func (tx *transaction) CreateDailyArchive(a DailyArchive) (DailyArchive, error) {
	tx.ensureID(&a.ID)
	if _, exists := tx.state.archives[a.ID]; exists {
		return DailyArchive{}, domain.DuplicateKeyError{Entity: domain.EntityDailyArchive, ID: a.ID}
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = tx.now
	}
	tx.state.archives[a.ID] = cloneArchive(a)
	tx.recordChange(Change{Entity: domain.EntityDailyArchive, Action: domain.ActionCreate, ID: a.ID, After: cloneArchive(a)})
	return cloneArchive(a), nil
}

// CreateShiftHandoff stores a new handoff.
func (tx *transaction) CreateShiftHandoff(h ShiftHandoff) (ShiftHandoff, error) {
	tx.ensureID(&h.ID)
	if _, exists := tx.state.handoffs[h.ID]; exists {
		return ShiftHandoff{}, domain.DuplicateKeyError{Entity: domain.EntityShiftHandoff, ID: h.ID}
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = tx.now
	}
	if h.Status == "" {
		h.Status = domain.HandoffPending
	}
	tx.state.handoffs[h.ID] = cloneHandoff(h)
	tx.recordChange(Change{Entity: domain.EntityShiftHandoff, Action: domain.ActionCreate, ID: h.ID, After: cloneHandoff(h)})
	return cloneHandoff(h), nil
}

// UpdateShiftHandoff mutates a handoff.
func (tx *transaction) UpdateShiftHandoff(id string, mutator func(*ShiftHandoff) error) (ShiftHandoff, error) {
	current, ok := tx.state.handoffs[id]
	if !ok {
		return ShiftHandoff{}, domain.NotFoundError{Entity: domain.EntityShiftHandoff, ID: id}
	}
	before := cloneHandoff(current)
	if err := mutator(&current); err != nil {
		return ShiftHandoff{}, err
	}
	current.ID = id
	tx.state.handoffs[id] = cloneHandoff(current)
	tx.recordChange(Change{Entity: domain.EntityShiftHandoff, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneHandoff(current)})
	return cloneHandoff(current), nil
}

// CreateSyncQueueItem appends an outbox entry.
func (tx *transaction) CreateSyncQueueItem(i SyncQueueItem) (SyncQueueItem, error) {
	tx.ensureID(&i.ID)
	if _, exists := tx.state.syncQueue[i.ID]; exists {
		return SyncQueueItem{}, domain.DuplicateKeyError{Entity: domain.EntitySyncQueueItem, ID: i.ID}
	}
	if i.Status == "" {
		i.Status = domain.QueuePending
	}
	tx.state.syncQueue[i.ID] = cloneSyncItem(i)
	tx.recordChange(Change{Entity: domain.EntitySyncQueueItem, Action: domain.ActionCreate, ID: i.ID, After: cloneSyncItem(i)})
	return cloneSyncItem(i), nil
}

// UpdateSyncQueueItem mutates an outbox entry (transport status path).
func (tx *transaction) UpdateSyncQueueItem(id string, mutator func(*SyncQueueItem) error) (SyncQueueItem, error) {
	current, ok := tx.state.syncQueue[id]
	if !ok {
		return SyncQueueItem{}, domain.NotFoundError{Entity: domain.EntitySyncQueueItem, ID: id}
	}
	before := cloneSyncItem(current)
	if err := mutator(&current); err != nil {
		return SyncQueueItem{}, err
	}
	current.ID = id
	tx.state.syncQueue[id] = cloneSyncItem(current)
	tx.recordChange(Change{Entity: domain.EntitySyncQueueItem, Action: domain.ActionUpdate, ID: id, Before: before, After: cloneSyncItem(current)})
	return cloneSyncItem(current), nil
}

// CreateConflictLog appends a conflict record.
func (tx *transaction) CreateConflictLog(c ConflictLog) (ConflictLog, error) {
	tx.ensureID(&c.ID)
	if _, exists := tx.state.conflicts[c.ID]; exists {
		return ConflictLog{}, domain.DuplicateKeyError{Entity: domain.EntityConflictLog, ID: c.ID}
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = tx.now
	}
	tx.state.conflicts[c.ID] = cloneConflict(c)
	tx.recordChange(Change{Entity: domain.EntityConflictLog, Action: domain.ActionCreate, ID: c.ID, After: cloneConflict(c)})
	return cloneConflict(c), nil
}

// CreateAuditEvent appends an audit entry.
func (tx *transaction) CreateAuditEvent(a AuditEvent) (AuditEvent, error) {
	tx.ensureID(&a.ID)
	if _, exists := tx.state.audit[a.ID]; exists {
		return AuditEvent{}, domain.DuplicateKeyError{Entity: domain.EntityAuditEvent, ID: a.ID}
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = tx.now
	}
	tx.state.audit[a.ID] = cloneAudit(a)
	tx.recordChange(Change{Entity: domain.EntityAuditEvent, Action: domain.ActionCreate, ID: a.ID, After: cloneAudit(a)})
	return cloneAudit(a), nil
}

// CreateMigrationStatus appends a migration run record.
func (tx *transaction) CreateMigrationStatus(m MigrationStatus) (MigrationStatus, error) {
	tx.ensureID(&m.ID)
	if _, exists := tx.state.migrations[m.ID]; exists {
		return MigrationStatus{}, domain.DuplicateKeyError{Entity: domain.EntityMigrationStatus, ID: m.ID}
	}
	if m.MigrationDate.IsZero() {
		m.MigrationDate = tx.now
	}
	if m.Errors == nil {
		m.Errors = []string{}
	}
	tx.state.migrations[m.ID] = cloneMigration(m)
	tx.recordChange(Change{Entity: domain.EntityMigrationStatus, Action: domain.ActionCreate, ID: m.ID, After: cloneMigration(m)})
	return cloneMigration(m), nil
}

// PutAppConfig replaces the singleton configuration row.
func (tx *transaction) PutAppConfig(c AppConfig) error {
	action := domain.ActionCreate
	if tx.state.config != nil {
		action = domain.ActionUpdate
	}
	tx.state.config = cloneConfig(&c)
	tx.recordChange(Change{Entity: domain.EntityAppConfig, Action: action, ID: c.Version, After: c})
	return nil
}
