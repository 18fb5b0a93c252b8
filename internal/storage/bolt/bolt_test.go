package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/fieldtrack/internal/storage"
)

func TestStoreSetGet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if _, err := store.Get(ctx, "user_id"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := store.Set(ctx, "user_id", "worker-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "user_id", "worker-2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	value, err := store.Get(ctx, "user_id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "worker-2" {
		t.Fatalf("expected worker-2, got %q", value)
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, key, key); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing key: %v", err)
	}

	assertMissing(t, store, "a")
	for _, key := range []string{"b", "c"} {
		if got, err := store.Get(ctx, key); err != nil || got != key {
			t.Fatalf("get %s after delete: %q, %v", key, got, err)
		}
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	for _, key := range []string{"b", "c"} {
		assertMissing(t, store, key)
	}
}

func assertMissing(t *testing.T, store *Store, key string) {
	t.Helper()
	if _, err := store.Get(context.Background(), key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected %s to be missing, got %v", key, err)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device.bolt")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(context.Background(), "location_queue", `[{"id":"x"}]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	value, err := reopened.Get(context.Background(), "location_queue")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if value != `[{"id":"x"}]` {
		t.Fatalf("unexpected value after reopen: %q", value)
	}
}

func TestStoreCanceledContext(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Set(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fieldtrack.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
