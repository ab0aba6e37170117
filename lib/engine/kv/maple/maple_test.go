package maple

import (
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine/kv"
	kvtesting "github.com/ValentinKolb/fKV/lib/engine/kv/testing"
)

func Test(t *testing.T) {
	kvtesting.RunBackendTests(t, "Maple", func(testing.TB) kv.Backend {
		return New()
	})
}

func Benchmark(b *testing.B) {
	kvtesting.RunBackendBenchmarks(b, "Maple", func(testing.TB) kv.Backend {
		return New()
	})
}

func TestCursorSkipsDeletedKeys(t *testing.T) {
	db := New()
	defer db.Close()

	tx, _ := db.Begin(true)
	_ = tx.CreateBucket("data")
	for _, k := range []string{"a", "b", "c"} {
		_ = tx.Put("data", []byte(k), []byte(k))
	}

	c, _ := tx.Cursor("data")
	if k, _ := c.First(); string(k) != "a" {
		t.Fatalf("Expected a, got %q", k)
	}
	_ = tx.Delete("data", []byte("b"))
	if k, _ := c.Next(); string(k) != "c" {
		t.Errorf("Expected c after deleting b, got %q", k)
	}
	_ = tx.Commit()
}

func TestClosed(t *testing.T) {
	db := New()
	_ = db.Close()
	if _, err := db.Begin(false); err != kv.ErrBackendClosed {
		t.Errorf("Expected ErrBackendClosed, got %v", err)
	}
}
