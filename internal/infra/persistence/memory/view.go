package memory

// view exposes a read-only snapshot of store state.
type view struct {
	state *memoryState
}

func newView(state *memoryState) *view {
	return &view{state: state}
}

// ListEmployees returns all employees within the snapshot.
func (v *view) ListEmployees() []Employee {
	out := make([]Employee, 0, len(v.state.employees))
	for _, e := range v.state.employees {
		out = append(out, cloneEmployee(e))
	}
	return out
}

// FindEmployee retrieves an employee by ID from the snapshot.
func (v *view) FindEmployee(id string) (Employee, bool) {
	e, ok := v.state.employees[id]
	if !ok {
		return Employee{}, false
	}
	return cloneEmployee(e), true
}

// ListProducts returns all products.
func (v *view) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	return out
}

// FindProduct retrieves a product by ID.
func (v *view) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

// ListTasks returns all tasks.
func (v *view) ListTasks() []Task {
	out := make([]Task, 0, len(v.state.tasks))
	for _, t := range v.state.tasks {
		out = append(out, t)
	}
	return out
}

// FindTask retrieves a task by ID.
func (v *view) FindTask(id string) (Task, bool) {
	t, ok := v.state.tasks[id]
	return t, ok
}

// ListBatches returns all batches.
func (v *view) ListBatches() []Batch {
	out := make([]Batch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	return out
}

// FindBatch retrieves a batch by ID.
func (v *view) FindBatch(id string) (Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// ListSessions returns all sessions.
func (v *view) ListSessions() []Session {
	out := make([]Session, 0, len(v.state.sessions))
	for _, s := range v.state.sessions {
		out = append(out, cloneSession(s))
	}
	return out
}

// FindSession retrieves a session by ID.
func (v *view) FindSession(id string) (Session, bool) {
	s, ok := v.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	return cloneSession(s), true
}

// ListCompletions returns all completions.
func (v *view) ListCompletions() []Completion {
	out := make([]Completion, 0, len(v.state.completions))
	for _, c := range v.state.completions {
		out = append(out, cloneCompletion(c))
	}
	return out
}

// FindCompletion retrieves a completion by ID.
func (v *view) FindCompletion(id string) (Completion, bool) {
	c, ok := v.state.completions[id]
	if !ok {
		return Completion{}, false
	}
	return cloneCompletion(c), true
}

// ListQualityEvents returns all quality events.
func (v *view) ListQualityEvents() []QualityEvent {
	out := make([]QualityEvent, 0, len(v.state.quality))
	for _, q := range v.state.quality {
		out = append(out, q)
	}
	return out
}

// ListOEECalculations returns all OEE aggregates.
func (v *view) ListOEECalculations() []OEECalculation {
	out := make([]OEECalculation, 0, len(v.state.oee))
	for _, o := range v.state.oee {
		out = append(out, cloneOEE(o))
	}
	return out
}

// ListAlerts returns all alerts.
func (v *view) ListAlerts() []Alert {
	out := make([]Alert, 0, len(v.state.alerts))
	for _, a := range v.state.alerts {
		out = append(out, cloneAlert(a))
	}
	return out
}

// ListAndonEvents returns all andon calls.
func (v *view) ListAndonEvents() []AndonEvent {
	out := make([]AndonEvent, 0, len(v.state.andon))
	for _, a := range v.state.andon {
		out = append(out, cloneAndon(a))
	}
	return out
}

// ListDailyArchives returns all archives.
func (v *view) ListDailyArchives() []DailyArchive {
	out := make([]DailyArchive, 0, len(v.state.archives))
	for _, a := range v.state.archives {
		out = append(out, cloneArchive(a))
	}
	return out
}

// ListShiftHandoffs returns all handoffs.
func (v *view) ListShiftHandoffs() []ShiftHandoff {
	out := make([]ShiftHandoff, 0, len(v.state.handoffs))
	for _, h := range v.state.handoffs {
		out = append(out, cloneHandoff(h))
	}
	return out
}

// ListSyncQueueItems returns all outbox entries.
func (v *view) ListSyncQueueItems() []SyncQueueItem {
	out := make([]SyncQueueItem, 0, len(v.state.syncQueue))
	for _, i := range v.state.syncQueue {
		out = append(out, cloneSyncItem(i))
	}
	return out
}

// ListConflictLogs returns all conflict records.
func (v *view) ListConflictLogs() []ConflictLog {
	out := make([]ConflictLog, 0, len(v.state.conflicts))
	for _, c := range v.state.conflicts {
		out = append(out, cloneConflict(c))
	}
	return out
}

// ListAuditEvents returns all audit entries.
func (v *view) ListAuditEvents() []AuditEvent {
	out := make([]AuditEvent, 0, len(v.state.audit))
	for _, a := range v.state.audit {
		out = append(out, cloneAudit(a))
	}
	return out
}

// ListMigrationStatuses returns all migration run records.
func (v *view) ListMigrationStatuses() []MigrationStatus {
	out := make([]MigrationStatus, 0, len(v.state.migrations))
	for _, m := range v.state.migrations {
		out = append(out, cloneMigration(m))
	}
	return out
}

// GetAppConfig returns the singleton configuration row if present.
func (v *view) GetAppConfig() (AppConfig, bool) {
	if v.state.config == nil {
		return AppConfig{}, false
	}
	return *cloneConfig(v.state.config), true
}

// Committed-state read helpers -----------------------------------------------

// GetEmployee retrieves an employee from committed state.
func (s *Store) GetEmployee(id string) (Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.employees[id]
	if !ok {
		return Employee{}, false
	}
	return cloneEmployee(e), true
}

// ListEmployees returns all employees from committed state.
func (s *Store) ListEmployees() []Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListEmployees()
}

// GetProduct retrieves a product from committed state.
func (s *Store) GetProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	return p, ok
}

// ListProducts returns all products from committed state.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListProducts()
}

// GetTask retrieves a task from committed state.
func (s *Store) GetTask(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tasks[id]
	return t, ok
}

// ListTasks returns all tasks from committed state.
func (s *Store) ListTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListTasks()
}

// GetBatch retrieves a batch from committed state.
func (s *Store) GetBatch(id string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// ListBatches returns all batches from committed state.
func (s *Store) ListBatches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListBatches()
}

// GetSession retrieves a session from committed state.
func (s *Store) GetSession(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	return cloneSession(sess), true
}

// ListSessions returns all sessions from committed state.
func (s *Store) ListSessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListSessions()
}

// GetCompletion retrieves a completion from committed state.
func (s *Store) GetCompletion(id string) (Completion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.completions[id]
	if !ok {
		return Completion{}, false
	}
	return cloneCompletion(c), true
}

// ListCompletions returns all completions from committed state.
func (s *Store) ListCompletions() []Completion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListCompletions()
}

// ListSyncQueueItems returns all outbox entries from committed state.
func (s *Store) ListSyncQueueItems() []SyncQueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListSyncQueueItems()
}

// ListAuditEvents returns all audit entries from committed state.
func (s *Store) ListAuditEvents() []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListAuditEvents()
}

// ListMigrationStatuses returns all migration run records from committed state.
func (s *Store) ListMigrationStatuses() []MigrationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListMigrationStatuses()
}

// ListDailyArchives returns all archives from committed state.
func (s *Store) ListDailyArchives() []DailyArchive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListDailyArchives()
}
