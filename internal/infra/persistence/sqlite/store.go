// Package sqlite persists the in-memory store to a local SQLite file by
// snapshotting the full state after every committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"floortrack/internal/infra/persistence/memory"
	"floortrack/pkg/domain"
)

// SchemaVersion is the current declared schema. Upgrades are additive only:
// opening a database written by an older version registers the new buckets
// and bumps the recorded version without touching existing rows.
const SchemaVersion = 2

// bucketVersions maps each bucket to the schema version that introduced it.
var bucketVersions = map[string]int{
	"employees":       1,
	"products":        1,
	"tasks":           1,
	"batches":         1,
	"sessions":        1,
	"completions":     1,
	"qualityEvents":   1,
	"oeeCalculations": 1,
	"dailyArchives":   1,
	"syncQueue":       1,
	"auditEvents":     1,
	"migrations":      1,
	"config":          1,
	"alerts":          2,
	"andonEvents":     2,
	"shiftHandoffs":   2,
	"conflictLog":     2,
}

var _ domain.PersistentStore = (*Store)(nil)

// Store writes state to a single SQLite table as JSON blobs, one row per
// entity bucket.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store. A nil
// clock falls back to a process-local identity source.
func NewStore(path string, clock domain.Clock) (*Store, error) {
	if path == "" {
		path = "floortrack.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, domain.StorageError{Op: "create dirs", Err: err}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.StorageError{Op: "open sqlite", Err: err}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, domain.StorageError{Op: "create state table", Err: err}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	)`); err != nil {
		return nil, domain.StorageError{Op: "create version table", Err: err}
	}
	s := &Store{Store: memory.NewStore(clock), db: db, path: path}
	if err := s.upgradeSchema(); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// upgradeSchema records the declared version. Buckets introduced by newer
// versions simply start empty; existing rows remain valid as-is.
func (s *Store) upgradeSchema() error {
	var stored int
	err := s.db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		stored = 0
	case err != nil:
		return domain.StorageError{Op: "read schema version", Err: err}
	}
	if stored > SchemaVersion {
		return domain.StorageError{Op: "schema check", Err: fmt.Errorf("database version %d is newer than supported %d", stored, SchemaVersion)}
	}
	if stored == SchemaVersion {
		return nil
	}
	if _, err := s.db.Exec(
		`INSERT INTO schema_version(id, version) VALUES(1, ?) ON CONFLICT(id) DO UPDATE SET version=excluded.version`,
		SchemaVersion,
	); err != nil {
		return domain.StorageError{Op: "write schema version", Err: err}
	}
	return nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return domain.StorageError{Op: "select state", Err: err}
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return domain.StorageError{Op: "scan state", Err: err}
		}
		dst, ok := bucketTarget(&snapshot, bucket)
		if !ok {
			// Bucket from a newer schema than the binary knows; additive
			// policy means it is safe to leave untouched on disk.
			continue
		}
		if err := json.Unmarshal(payload, dst); err != nil {
			return domain.StorageError{Op: "decode " + bucket, Err: err}
		}
		loaded = true
	}
	if err := rows.Err(); err != nil {
		return domain.StorageError{Op: "iterate state", Err: err}
	}
	if loaded {
		s.ImportState(snapshot)
	}
	return nil
}

// bucketTarget returns the snapshot field backing a named bucket.
func bucketTarget(snap *memory.Snapshot, bucket string) (any, bool) {
	switch bucket {
	case "employees":
		return &snap.Employees, true
	case "products":
		return &snap.Products, true
	case "tasks":
		return &snap.Tasks, true
	case "batches":
		return &snap.Batches, true
	case "sessions":
		return &snap.Sessions, true
	case "completions":
		return &snap.Completions, true
	case "qualityEvents":
		return &snap.Quality, true
	case "oeeCalculations":
		return &snap.OEE, true
	case "alerts":
		return &snap.Alerts, true
	case "andonEvents":
		return &snap.Andon, true
	case "dailyArchives":
		return &snap.Archives, true
	case "shiftHandoffs":
		return &snap.Handoffs, true
	case "syncQueue":
		return &snap.SyncQueue, true
	case "conflictLog":
		return &snap.Conflicts, true
	case "auditEvents":
		return &snap.Audit, true
	case "migrations":
		return &snap.Migrations, true
	case "config":
		return &snap.Config, true
	default:
		return nil, false
	}
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return domain.StorageError{Op: "begin", Err: err}
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for bucket := range bucketVersions {
		src, _ := bucketTarget(&snapshot, bucket)
		data, err := json.Marshal(src)
		if err != nil {
			retErr = domain.StorageError{Op: "encode " + bucket, Err: err}
			return retErr
		}
		if _, err = tx.Exec(
			`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			bucket, data,
		); err != nil {
			retErr = domain.StorageError{Op: "upsert " + bucket, Err: err}
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return domain.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// RunInTransaction applies fn within a transaction, then snapshots state to
// SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) ([]domain.Change, error) {
	changes, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return changes, err
	}
	if pErr := s.persist(); pErr != nil {
		return changes, pErr
	}
	return changes, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
