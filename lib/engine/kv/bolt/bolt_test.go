package bolt

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine/kv"
	kvtesting "github.com/ValentinKolb/fKV/lib/engine/kv/testing"
)

func factory(tb testing.TB) kv.Backend {
	db, err := New(filepath.Join(tb.TempDir(), "test.db"), &Options{NoSync: true})
	if err != nil {
		tb.Fatalf("Failed to open bolt backend: %v", err)
	}
	return db
}

func Test(t *testing.T) {
	kvtesting.RunBackendTests(t, "Bolt", factory)
}

func Benchmark(b *testing.B) {
	kvtesting.RunBackendBenchmarks(b, "Bolt", factory)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := New(path, nil)
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

	db, err = New(path, nil)
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
