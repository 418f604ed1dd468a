package ident

import (
	"path/filepath"
	"testing"
)

func TestServiceMintsIdentityOnce(t *testing.T) {
	backend := NewMemoryBackend()
	first, err := NewService(backend, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.DeviceID() == "" {
		t.Fatal("expected a minted device ID")
	}

	second, err := NewService(backend, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.DeviceID() != first.DeviceID() {
		t.Fatalf("device ID changed across restarts: %s vs %s", first.DeviceID(), second.DeviceID())
	}
}

func TestNextLamportStrictlyIncreasing(t *testing.T) {
	svc, err := NewService(NewMemoryBackend(), nil)
	if err != nil {
		t.Fatal(err)
	}
	prev := svc.NextLamport()
	for i := 0; i < 1000; i++ {
		next := svc.NextLamport()
		if next <= prev {
			t.Fatalf("lamport went backwards: %d after %d", next, prev)
		}
		prev = next
	}
}

func TestNextLamportSurvivesRestart(t *testing.T) {
	backend := NewMemoryBackend()
	svc, err := NewService(backend, nil)
	if err != nil {
		t.Fatal(err)
	}
	last := svc.NextLamport()

	restarted, err := NewService(backend, nil)
	if err != nil {
		t.Fatal(err)
	}
	if next := restarted.NextLamport(); next <= last {
		t.Fatalf("restarted clock reissued %d after %d", next, last)
	}
}

func TestObserveFoldsRemoteStamps(t *testing.T) {
	svc, err := NewService(NewMemoryBackend(), nil)
	if err != nil {
		t.Fatal(err)
	}
	local := svc.NextLamport()

	remote := local + 1_000_000
	svc.Observe(remote)
	if next := svc.NextLamport(); next <= remote {
		t.Fatalf("local event %d should order after observed %d", next, remote)
	}

	// Observing an older stamp must not move the clock backwards.
	svc.Observe(local)
	if next := svc.NextLamport(); next <= remote {
		t.Fatalf("stale observation rewound the clock to %d", next)
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device.json")
	backend := NewFileBackend(path)

	if _, ok, err := backend.Load(); err != nil || ok {
		t.Fatalf("fresh backend: ok=%v err=%v", ok, err)
	}

	want := State{DeviceID: "device-1", LastLamport: 42}
	if err := backend.Save(want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := backend.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got != want {
		t.Fatalf("loaded %+v (ok=%v), want %+v", got, ok, want)
	}
}
