package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s", store.Driver())
	}

	info, err := store.Put(ctx, "legacy/a.json", strings.NewReader("payload"), PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != int64(len("payload")) {
		t.Fatalf("size = %d", info.Size)
	}

	if _, err := store.Put(ctx, "legacy/a.json", strings.NewReader("again"), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "../bad", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatal("traversal key should be rejected")
	}

	got, rc, err := store.Get(ctx, "legacy/a.json")
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(data) != "payload" {
		t.Fatalf("read = %q, %v", data, err)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %q", got.ContentType)
	}

	if _, err := store.Put(ctx, "other/b.json", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatal(err)
	}
	infos, err := store.List(ctx, "legacy/")
	if err != nil || len(infos) != 1 || infos[0].Key != "legacy/a.json" {
		t.Fatalf("list = %+v, %v", infos, err)
	}

	ok, err := store.Delete(ctx, "legacy/a.json")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	ok, err = store.Delete(ctx, "legacy/a.json")
	if err != nil || ok {
		t.Fatalf("second delete = %v, %v", ok, err)
	}
}
