package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/infrastructure/persistence/boltdb"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	db, err := boltdb.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewBoltStore(db)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	return store
}

func TestBoltStoreRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestBoltStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Set(ctx, "k", []byte(`{"domain":"example.com"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(got) != `{"domain":"example.com"}` {
		t.Fatalf("unexpected value %s", got)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestBoltStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestBoltStore(t)
	_ = store.Set(ctx, "wp_vulnz_website_1", []byte(`1`), time.Hour)
	_ = store.Set(ctx, "wp_vulnz_website_2", []byte(`2`), time.Hour)
	_ = store.Set(ctx, "zzz", []byte(`3`), time.Hour)

	n, err := store.DeletePrefix(ctx, "wp_vulnz_website_")
	if err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok, _ := store.Get(ctx, "zzz"); !ok {
		t.Fatal("unrelated key must survive")
	}
}

func TestBoltStoreDeleteMissing(t *testing.T) {
	store := newTestBoltStore(t)
	if err := store.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
