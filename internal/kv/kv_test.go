package kv

import (
	"testing"
	"time"

	"github.com/dokzlo13/ledlink/internal/db"
)

func openDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(db.MemoryPath)
	if err != nil {
		t.Fatalf("db.Open() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestBuckets(t *testing.T) {
	d := openDB(t)
	buckets := []Bucket{
		NewMemoryBucket("mem"),
		NewSQLiteBucket(d.DB, "sql"),
	}

	for _, b := range buckets {
		t.Run(b.Name(), func(t *testing.T) {
			if err := b.Store("p", point{1, 2}, nil); err != nil {
				t.Fatalf("Store() error: %v", err)
			}

			var got point
			ok, err := b.Load("p", &got)
			if err != nil || !ok {
				t.Fatalf("Load() = %v, %v", ok, err)
			}
			if got != (point{1, 2}) {
				t.Errorf("Load() = %+v", got)
			}

			generic, err := b.Get("p")
			if err != nil {
				t.Fatal(err)
			}
			if m, ok := generic.(map[string]any); !ok || m["x"] != float64(1) {
				t.Errorf("Get() = %#v", generic)
			}

			if ok, _ := b.Load("missing", &got); ok {
				t.Error("Load() found a missing key")
			}
			if v, _ := b.Get("missing"); v != nil {
				t.Errorf("Get(missing) = %v", v)
			}

			_ = b.Store("a", "x", nil)
			keys, err := b.Keys()
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 2 || keys[0] != "a" || keys[1] != "p" {
				t.Errorf("Keys() = %v", keys)
			}

			if deleted, _ := b.Delete("a"); !deleted {
				t.Error("Delete() = false for an existing key")
			}
			if deleted, _ := b.Delete("a"); deleted {
				t.Error("Delete() = true for a deleted key")
			}

			if err := b.Clear(); err != nil {
				t.Fatal(err)
			}
			if exists, _ := b.Exists("p"); exists {
				t.Error("Clear() left keys behind")
			}
		})
	}
}

func TestBucketTTL(t *testing.T) {
	d := openDB(t)
	buckets := []Bucket{
		NewMemoryBucket("mem"),
		NewSQLiteBucket(d.DB, "sql"),
	}

	for _, b := range buckets {
		t.Run(b.Name(), func(t *testing.T) {
			if err := b.Store("short", 1, &StoreOptions{TTL: 20 * time.Millisecond}); err != nil {
				t.Fatal(err)
			}
			if err := b.Store("long", 2, &StoreOptions{TTL: time.Hour}); err != nil {
				t.Fatal(err)
			}
			if exists, _ := b.Exists("short"); !exists {
				t.Fatal("entry expired immediately")
			}

			time.Sleep(40 * time.Millisecond)

			if exists, _ := b.Exists("short"); exists {
				t.Error("entry did not expire")
			}
			keys, _ := b.Keys()
			if len(keys) != 1 || keys[0] != "long" {
				t.Errorf("Keys() = %v, want [long]", keys)
			}
		})
	}
}

func TestManager(t *testing.T) {
	d := openDB(t)
	m := NewManager(d.DB)

	settings := m.Bucket(BucketSettings, true)
	if !settings.IsPersistent() {
		t.Error("persistent bucket is not persistent")
	}
	if m.Bucket(BucketSettings, true) != settings {
		t.Error("Bucket() returned a different instance")
	}
	cache := m.Bucket(BucketDiscovery, false)
	if cache.IsPersistent() {
		t.Error("memory bucket reports persistent")
	}

	_ = settings.Store("address", "10.0.0.1", nil)
	_ = cache.Store("last", "10.0.0.2", &StoreOptions{TTL: time.Millisecond})

	names, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != BucketDiscovery || names[1] != BucketSettings {
		t.Errorf("List() = %v", names)
	}

	time.Sleep(5 * time.Millisecond)
	m.Cleanup()
	if keys, _ := cache.Keys(); len(keys) != 0 {
		t.Errorf("Cleanup() left %v", keys)
	}

	if deleted, err := m.Delete(BucketSettings); err != nil || !deleted {
		t.Errorf("Delete() = %v, %v", deleted, err)
	}
	if m.Exists(BucketSettings) {
		t.Error("bucket still exists after Delete")
	}
}

func TestManagerWithoutDatabase(t *testing.T) {
	m := NewManager(nil)
	b := m.Bucket(BucketSettings, true)
	if b.IsPersistent() {
		t.Error("bucket persistent without a database")
	}
	if !m.Exists(BucketSettings) {
		t.Error("Exists() = false for created bucket")
	}
	m.StartCleanup(t.Context(), time.Millisecond)
	m.StopCleanup()
	m.StopCleanup()
}

func TestTyped(t *testing.T) {
	b := NewMemoryBucket("typed")
	counter := NewTyped[int](b, "count")

	if _, ok, err := counter.Get(); ok || err != nil {
		t.Fatalf("Get() on empty = %v, %v", ok, err)
	}
	for i := 0; i < 3; i++ {
		if err := counter.Update(func(n int) int { return n + 1 }); err != nil {
			t.Fatal(err)
		}
	}
	if n, ok, _ := counter.Get(); !ok || n != 3 {
		t.Errorf("Get() = %d, %v, want 3", n, ok)
	}

	if err := counter.Delete(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := counter.Get(); ok {
		t.Error("value survived Delete")
	}
}
