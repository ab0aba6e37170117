package core

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/ValentinKolb/fKV/lib/engine/kv/bolt"
	"github.com/ValentinKolb/fKV/lib/engine/kv/lmdb"
	"github.com/ValentinKolb/fKV/lib/engine/kv/maple"
	enginetesting "github.com/ValentinKolb/fKV/lib/engine/testing"
)

func newFactory(tb testing.TB, variant string, open BackendOpener) engine.Factory {
	f, err := NewFactory(Options{Variant: variant, Open: open})
	if err != nil {
		tb.Fatalf("Failed to create factory: %v", err)
	}
	return f
}

func mapleFactory(tb testing.TB) engine.Factory {
	return newFactory(tb, "maple", func(string) (kv.Backend, error) {
		return maple.New(), nil
	})
}

func boltOpener(dir string) BackendOpener {
	return func(name string) (kv.Backend, error) {
		return bolt.New(filepath.Join(dir, name+".db"), &bolt.Options{NoSync: true})
	}
}

func lmdbOpener(dir string) BackendOpener {
	return func(name string) (kv.Backend, error) {
		return lmdb.New(filepath.Join(dir, name), &lmdb.Options{NoSync: true})
	}
}

func TestMaple(t *testing.T) {
	enginetesting.RunEngineTests(t, "Maple", mapleFactory)
}

func TestBolt(t *testing.T) {
	enginetesting.RunEngineTests(t, "Bolt", func(tb testing.TB) engine.Factory {
		return newFactory(tb, "bolt", boltOpener(tb.TempDir()))
	})
}

func TestLMDB(t *testing.T) {
	enginetesting.RunEngineTests(t, "LMDB", func(tb testing.TB) engine.Factory {
		return newFactory(tb, "lmdb", lmdbOpener(tb.TempDir()))
	})
}

func TestNewFactoryNeedsOpener(t *testing.T) {
	if _, err := NewFactory(Options{}); err == nil {
		t.Error("Expected error without backend opener")
	}
}

func TestOpenOutsideLoop(t *testing.T) {
	f := mapleFactory(t)
	defer f.Close()

	if _, err := f.Open("db", 1); err == nil {
		t.Error("Expected error when opening outside the loop")
	}
}

func TestClosedFactory(t *testing.T) {
	f := mapleFactory(t)
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close factory: %v", err)
	}
	if f.Schedule(func() {}) {
		t.Error("Expected Schedule to fail after Close")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

// TestPersistence reopens a bolt database with a new factory
func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	f := newFactory(t, "bolt", boltOpener(dir))
	db := enginetesting.MustOpen(t, f, "db", 2, func(t testing.TB, db engine.Database, _ *engine.Event) {
		s, err := db.CreateObjectStore("users", engine.ObjectStoreOptions{KeyPath: "id", AutoIncrement: true})
		if err != nil {
			t.Errorf("Failed to create store: %v", err)
			return
		}
		if _, err := s.CreateIndex("name", "name", engine.IndexOptions{}); err != nil {
			t.Errorf("Failed to create index: %v", err)
		}
	})
	enginetesting.RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := enginetesting.Store(t, tx, "users")
		enginetesting.Must(t)(s.Add(map[string]any{"name": "a"}, nil))
		enginetesting.Must(t)(s.Add(map[string]any{"name": "b"}, nil))
	})
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close factory: %v", err)
	}

	f = newFactory(t, "bolt", boltOpener(dir))
	defer f.Close()

	db = enginetesting.MustOpen(t, f, "db", 0, func(testing.TB, engine.Database, *engine.Event) {
		t.Error("Unexpected upgrade after reopen")
	})
	if db.Version() != 2 {
		t.Errorf("Expected version 2, got %d", db.Version())
	}
	if !db.Contains("users") {
		t.Fatal("Expected store users to survive the restart")
	}

	var key any
	res := enginetesting.RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		req := enginetesting.Must(t)(enginetesting.Store(t, tx, "users").Add(map[string]any{"name": "c"}, nil))
		req.OnSuccess(func(*engine.Event) { key = req.Result() })
	})
	if !res.Completed {
		t.Fatalf("Expected transaction to complete, got %v", res.AbortErr)
	}
	if key != 3.0 {
		t.Errorf("Expected generator to continue at 3, got %v", key)
	}
}
