// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics for deployments where several line terminals share
// one database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"floortrack/internal/infra/persistence/memory"
	"floortrack/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/floortrack?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory store from any existing snapshot.
func NewStore(dsn string, clock domain.Clock) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, domain.StorageError{Op: "open postgres", Err: err}
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, domain.StorageError{Op: "ping postgres", Err: err}
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(clock)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies fn within a transaction, then snapshots to
// Postgres if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) ([]domain.Change, error) {
	changes, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return changes, err
	}
	if err := s.persist(ctx); err != nil {
		return changes, err
	}
	return changes, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return domain.StorageError{Op: "ensure state table", Err: err}
	}
	return nil
}

var postgresBuckets = []string{
	"employees",
	"products",
	"tasks",
	"batches",
	"sessions",
	"completions",
	"qualityEvents",
	"oeeCalculations",
	"alerts",
	"andonEvents",
	"dailyArchives",
	"shiftHandoffs",
	"syncQueue",
	"conflictLog",
	"auditEvents",
	"migrations",
	"config",
}

func snapshotTargets(snapshot *memory.Snapshot) map[string]any {
	return map[string]any{
		"employees":       &snapshot.Employees,
		"products":        &snapshot.Products,
		"tasks":           &snapshot.Tasks,
		"batches":         &snapshot.Batches,
		"sessions":        &snapshot.Sessions,
		"completions":     &snapshot.Completions,
		"qualityEvents":   &snapshot.Quality,
		"oeeCalculations": &snapshot.OEE,
		"alerts":          &snapshot.Alerts,
		"andonEvents":     &snapshot.Andon,
		"dailyArchives":   &snapshot.Archives,
		"shiftHandoffs":   &snapshot.Handoffs,
		"syncQueue":       &snapshot.SyncQueue,
		"conflictLog":     &snapshot.Conflicts,
		"auditEvents":     &snapshot.Audit,
		"migrations":      &snapshot.Migrations,
		"config":          &snapshot.Config,
	}
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, domain.StorageError{Op: "select state", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := snapshotTargets(&snapshot)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, domain.StorageError{Op: "scan state", Err: err}
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return memory.Snapshot{}, domain.StorageError{Op: "decode " + bucket, Err: err}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, domain.StorageError{Op: "iterate state", Err: err}
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	sources := snapshotTargets(&snapshot)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError{Op: "begin tx", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range postgresBuckets {
		data, err := json.Marshal(sources[bucket])
		if err != nil {
			return domain.StorageError{Op: "encode " + bucket, Err: err}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return domain.StorageError{Op: "upsert " + bucket, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageError{Op: "commit", Err: err}
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
