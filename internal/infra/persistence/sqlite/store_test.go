package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"floortrack/pkg/domain"
)

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floortrack.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	var sess domain.Session
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateEmployee(domain.Employee{ID: "emp-1", Name: "Dana", Active: true}); err != nil {
			return err
		}
		var err error
		sess, err = tx.CreateSession(domain.Session{ID: "sess-1", EmployeeID: "emp-1"})
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()

	if _, ok := reopened.GetEmployee("emp-1"); !ok {
		t.Fatal("employee not persisted")
	}
	got, ok := reopened.GetSession("sess-1")
	if !ok {
		t.Fatal("session not persisted")
	}
	if got.LamportTimestamp != sess.LamportTimestamp || got.DeviceID != sess.DeviceID {
		t.Fatalf("sync meta mangled: %+v vs %+v", got.SyncMeta, sess.SyncMeta)
	}
}

func TestFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floortrack.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProduct(domain.Product{ID: "prod-1", Name: "Cart 9"}); err != nil {
			return err
		}
		return domain.NotFoundError{Entity: domain.EntityTask, ID: "missing"}
	})
	if err == nil {
		t.Fatal("expected transaction failure")
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()
	if got := reopened.ListProducts(); len(got) != 0 {
		t.Fatalf("rolled-back write reached disk: %+v", got)
	}
}

func TestSchemaVersionRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floortrack.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	var version int
	if err := store.DB().QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Fatalf("recorded version = %d, want %d", version, SchemaVersion)
	}
}

func TestNewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floortrack.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.DB().Exec(`UPDATE schema_version SET version = ? WHERE id = 1`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStore(path, nil); err == nil {
		t.Fatal("expected open to reject a newer schema")
	}
}

func TestUnknownBucketSkippedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floortrack.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateEmployee(domain.Employee{ID: "emp-1", Name: "Dana"})
		return err
	}); err != nil {
		t.Fatal(err)
	}
	// Simulate a bucket written by a future additive schema.
	if _, err := store.DB().Exec(
		`INSERT INTO state(bucket,payload) VALUES('futureBucket','{"x-1":{}}')`,
	); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open should tolerate unknown buckets: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if _, ok := reopened.GetEmployee("emp-1"); !ok {
		t.Fatal("known bucket lost while skipping unknown one")
	}
}
