package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func setTestEnv(t *testing.T, driver string) {
	t.Helper()
	dir := t.TempDir()
	// Point at a nonexistent file so defaults load, then steer everything
	// into the test's temp directory via environment overrides.
	prev := configPath
	configPath = filepath.Join(dir, "missing-config.toml")
	t.Cleanup(func() { configPath = prev })
	t.Setenv("FLOORTRACK_STORAGE_DRIVER", driver)
	t.Setenv("FLOORTRACK_IDENT_PATH", filepath.Join(dir, "device.json"))
	t.Setenv("FLOORTRACK_SQLITE_PATH", filepath.Join(dir, "floortrack.db"))
}

func TestOpenEnvUnknownDriver(t *testing.T) {
	setTestEnv(t, "bogus")

	e, err := openEnv()
	if err == nil {
		e.close()
		t.Fatal("expected an error for an unknown storage driver")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("error should name the driver: %v", err)
	}
}

func TestOpenEnvMemoryDriver(t *testing.T) {
	setTestEnv(t, "memory")

	e, err := openEnv()
	if err != nil {
		t.Fatal(err)
	}
	if e.store == nil || e.clock == nil || e.log == nil {
		t.Fatalf("incomplete env: %+v", e)
	}
	e.close()

	// The identity file must be releasable and reusable after close.
	again, err := openEnv()
	if err != nil {
		t.Fatal(err)
	}
	if again.clock.DeviceID() != e.clock.DeviceID() {
		t.Fatalf("device identity not stable across reopen: %s != %s",
			again.clock.DeviceID(), e.clock.DeviceID())
	}
	again.close()
}

func TestOpenEnvSQLiteDriverReopens(t *testing.T) {
	setTestEnv(t, "sqlite")

	e, err := openEnv()
	if err != nil {
		t.Fatal(err)
	}
	e.close()

	// A clean close leaves the database file openable by the next run.
	again, err := openEnv()
	if err != nil {
		t.Fatal(err)
	}
	again.close()
}
