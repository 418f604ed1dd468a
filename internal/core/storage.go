package core

import (
	"fmt"
	"os"

	"floortrack/internal/infra/persistence/memory"
	"floortrack/internal/infra/persistence/postgres"
	"floortrack/internal/infra/persistence/sqlite"
	"floortrack/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	FLOORTRACK_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FLOORTRACK_SQLITE_PATH: path to sqlite file (default ./floortrack.db)
//	FLOORTRACK_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(clock domain.Clock) (PersistentStore, error) {
	driver := os.Getenv("FLOORTRACK_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(clock), nil
	case StorageSQLite:
		path := os.Getenv("FLOORTRACK_SQLITE_PATH")
		return sqlite.NewStore(path, clock)
	case StoragePostgres:
		dsn := os.Getenv("FLOORTRACK_POSTGRES_DSN")
		return postgres.NewStore(dsn, clock)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
