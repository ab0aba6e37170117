package lmdb

import (
	"runtime"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine/kv"
	kvtesting "github.com/ValentinKolb/fKV/lib/engine/kv/testing"
)

func factory(tb testing.TB) kv.Backend {
	db, err := New(tb.TempDir(), &Options{NoSync: true, MapSize: 8 << 20})
	if err != nil {
		tb.Fatalf("Failed to open lmdb backend: %v", err)
	}
	return db
}

func Test(t *testing.T) {
	kvtesting.RunBackendTests(t, "LMDB", factory)
}

func Benchmark(b *testing.B) {
	kvtesting.RunBackendBenchmarks(b, "LMDB", factory)
}

func TestReopen(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	dir := t.TempDir()

	db, err := New(dir, nil)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	tx, _ := db.Begin(true)
	_ = tx.CreateBucket("data")
	_ = tx.Put("data", []byte("k"), []byte("v"))
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	_ = db.Close()

	db, err = New(dir, nil)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer db.Close()
	tx, _ = db.Begin(false)
	defer tx.Rollback()
	v, err := tx.Get("data", []byte("k"))
	if err != nil || string(v) != "v" {
		t.Errorf("Expected v after reopen, got %q (%v)", v, err)
	}
}
