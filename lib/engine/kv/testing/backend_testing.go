package testing

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine/kv"
)

// BackendFactory creates a new, empty backend. File based backends should
// place their data below tb.TempDir().
type BackendFactory func(tb testing.TB) kv.Backend

// RunBackendTests runs the conformance test suite for a kv.Backend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		run := func(name string, fn func(t *testing.T, backend kv.Backend)) {
			t.Run(name, func(t *testing.T) {
				// lmdb write transactions are bound to an OS thread
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()

				backend := factory(t)
				defer backend.Close()
				fn(t, backend)
			})
		}

		run("Buckets", testBuckets)
		run("Put&Get", testPutGet)
		run("Delete", testDelete)
		run("Commit", testCommit)
		run("Rollback", testRollback)
		run("ReadOnly", testReadOnly)
		run("Clear&Count", testClearCount)
		run("PendingCount", testPendingCount)
		run("CursorOrder", testCursorOrder)
		run("CursorSeek", testCursorSeek)
		run("BinaryKeys", testBinaryKeys)
		run("TxClosed", testTxClosed)
		run("Info", testInfo)
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// update runs fn in a writable transaction and commits it
func update(t *testing.T, backend kv.Backend, fn func(tx kv.Txn)) {
	t.Helper()
	tx, err := backend.Begin(true)
	if err != nil {
		t.Fatalf("Failed to begin writable transaction: %v", err)
	}
	fn(tx)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}

// view runs fn in a read-only transaction
func view(t *testing.T, backend kv.Backend, fn func(tx kv.Txn)) {
	t.Helper()
	tx, err := backend.Begin(false)
	if err != nil {
		t.Fatalf("Failed to begin read-only transaction: %v", err)
	}
	defer tx.Rollback()
	fn(tx)
}

func mustPut(t *testing.T, tx kv.Txn, bucket, key, value string) {
	t.Helper()
	if err := tx.Put(bucket, []byte(key), []byte(value)); err != nil {
		t.Fatalf("Failed to put %s/%s: %v", bucket, key, err)
	}
}

func expectValue(t *testing.T, tx kv.Txn, bucket, key string, expected []byte) {
	t.Helper()
	v, err := tx.Get(bucket, []byte(key))
	if err != nil {
		t.Fatalf("Failed to get %s/%s: %v", bucket, key, err)
	}
	if expected == nil {
		if v != nil {
			t.Errorf("Expected %s/%s to be missing, got %q", bucket, key, v)
		}
		return
	}
	if !bytes.Equal(v, expected) {
		t.Errorf("Expected %s/%s = %q, got %q", bucket, key, expected, v)
	}
}

// collect walks a cursor forward (or backward) and returns all keys
func collect(c kv.Cursor, reverse bool) []string {
	var out []string
	var k []byte
	if reverse {
		k, _ = c.Last()
	} else {
		k, _ = c.First()
	}
	for k != nil {
		out = append(out, string(k))
		if reverse {
			k, _ = c.Prev()
		} else {
			k, _ = c.Next()
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testBuckets(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		for _, name := range []string{"b", "a", "c"} {
			if err := tx.CreateBucket(name); err != nil {
				t.Fatalf("Failed to create bucket %s: %v", name, err)
			}
		}
		// creating twice is a no-op
		if err := tx.CreateBucket("a"); err != nil {
			t.Errorf("Expected no error creating an existing bucket, got %v", err)
		}
	})

	view(t, backend, func(tx kv.Txn) {
		if !tx.HasBucket("a") || tx.HasBucket("missing") {
			t.Error("HasBucket reports wrong state")
		}
		names, err := tx.Buckets()
		if err != nil {
			t.Fatalf("Failed to list buckets: %v", err)
		}
		if !equalStrings(names, []string{"a", "b", "c"}) {
			t.Errorf("Expected buckets [a b c], got %v", names)
		}
	})

	update(t, backend, func(tx kv.Txn) {
		if err := tx.DeleteBucket("b"); err != nil {
			t.Fatalf("Failed to delete bucket: %v", err)
		}
		if err := tx.DeleteBucket("missing"); err != nil {
			t.Errorf("Expected no error deleting a missing bucket, got %v", err)
		}
	})

	view(t, backend, func(tx kv.Txn) {
		if tx.HasBucket("b") {
			t.Error("Expected bucket b to be deleted")
		}
		if _, err := tx.Get("b", []byte("k")); !errors.Is(err, kv.ErrBucketNotFound) {
			t.Errorf("Expected ErrBucketNotFound, got %v", err)
		}
	})
}

func testPutGet(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		if err := tx.CreateBucket("data"); err != nil {
			t.Fatalf("Failed to create bucket: %v", err)
		}
		mustPut(t, tx, "data", "key", "value1")
		expectValue(t, tx, "data", "key", []byte("value1"))
		mustPut(t, tx, "data", "key", "value2")
		expectValue(t, tx, "data", "key", []byte("value2"))
		expectValue(t, tx, "data", "nonexistent", nil)
	})

	view(t, backend, func(tx kv.Txn) {
		expectValue(t, tx, "data", "key", []byte("value2"))
	})
}

func testDelete(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		mustPut(t, tx, "data", "a", "1")
		mustPut(t, tx, "data", "b", "2")
	})

	update(t, backend, func(tx kv.Txn) {
		if err := tx.Delete("data", []byte("a")); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if err := tx.Delete("data", []byte("missing")); err != nil {
			t.Errorf("Expected no error deleting a missing key, got %v", err)
		}
	})

	view(t, backend, func(tx kv.Txn) {
		expectValue(t, tx, "data", "a", nil)
		expectValue(t, tx, "data", "b", []byte("2"))
	})
}

func testCommit(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		for i := 0; i < 100; i++ {
			mustPut(t, tx, "data", fmt.Sprintf("key-%03d", i), fmt.Sprintf("value-%d", i))
		}
	})

	view(t, backend, func(tx kv.Txn) {
		n, err := tx.Count("data")
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if n != 100 {
			t.Errorf("Expected 100 entries, got %d", n)
		}
		expectValue(t, tx, "data", "key-042", []byte("value-42"))
	})
}

func testRollback(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		_ = tx.CreateBucket("other")
		mustPut(t, tx, "data", "keep", "original")
		mustPut(t, tx, "data", "gone", "original")
		mustPut(t, tx, "other", "x", "1")
	})

	tx, err := backend.Begin(true)
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	mustPut(t, tx, "data", "keep", "changed")
	mustPut(t, tx, "data", "new", "value")
	_ = tx.Delete("data", []byte("gone"))
	_ = tx.CreateBucket("created")
	_ = tx.Clear("other")
	_ = tx.DeleteBucket("other")
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}

	view(t, backend, func(tx kv.Txn) {
		expectValue(t, tx, "data", "keep", []byte("original"))
		expectValue(t, tx, "data", "gone", []byte("original"))
		expectValue(t, tx, "data", "new", nil)
		if tx.HasBucket("created") {
			t.Error("Expected created bucket to be rolled back")
		}
		if !tx.HasBucket("other") {
			t.Fatal("Expected deleted bucket to be restored")
		}
		expectValue(t, tx, "other", "x", []byte("1"))
	})
}

func testReadOnly(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
	})

	view(t, backend, func(tx kv.Txn) {
		if tx.Writable() {
			t.Error("Expected read-only transaction")
		}
		if err := tx.Put("data", []byte("k"), []byte("v")); !errors.Is(err, kv.ErrTxReadOnly) {
			t.Errorf("Expected ErrTxReadOnly for Put, got %v", err)
		}
		if err := tx.CreateBucket("x"); !errors.Is(err, kv.ErrTxReadOnly) {
			t.Errorf("Expected ErrTxReadOnly for CreateBucket, got %v", err)
		}
		if err := tx.Clear("data"); !errors.Is(err, kv.ErrTxReadOnly) {
			t.Errorf("Expected ErrTxReadOnly for Clear, got %v", err)
		}
	})
}

func testClearCount(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		for i := 0; i < 10; i++ {
			mustPut(t, tx, "data", fmt.Sprintf("k%d", i), "v")
		}
	})

	update(t, backend, func(tx kv.Txn) {
		if err := tx.Clear("data"); err != nil {
			t.Fatalf("Failed to clear: %v", err)
		}
		n, _ := tx.Count("data")
		if n != 0 {
			t.Errorf("Expected 0 entries after clear, got %d", n)
		}
		mustPut(t, tx, "data", "after", "clear")
	})

	view(t, backend, func(tx kv.Txn) {
		if !tx.HasBucket("data") {
			t.Fatal("Expected bucket to survive clear")
		}
		n, _ := tx.Count("data")
		if n != 1 {
			t.Errorf("Expected 1 entry, got %d", n)
		}
	})
}

func testPendingCount(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		for i := 0; i < 10; i++ {
			mustPut(t, tx, "data", fmt.Sprintf("k%d", i), "v")
		}
	})

	// count sees deletes and puts of its own uncommitted transaction
	update(t, backend, func(tx kv.Txn) {
		for i := 0; i < 5; i++ {
			if err := tx.Delete("data", []byte(fmt.Sprintf("k%d", i))); err != nil {
				t.Fatalf("Failed to delete: %v", err)
			}
		}
		if n, _ := tx.Count("data"); n != 5 {
			t.Errorf("Expected 5 entries after delete, got %d", n)
		}
		mustPut(t, tx, "data", "new-1", "v")
		mustPut(t, tx, "data", "new-2", "v")
		if n, _ := tx.Count("data"); n != 7 {
			t.Errorf("Expected 7 entries after put, got %d", n)
		}
	})

	view(t, backend, func(tx kv.Txn) {
		if n, _ := tx.Count("data"); n != 7 {
			t.Errorf("Expected 7 committed entries, got %d", n)
		}
	})
}

func testCursorOrder(t *testing.T, backend kv.Backend) {
	var expected []string
	for i := 0; i < 50; i++ {
		expected = append(expected, fmt.Sprintf("key-%02d", i))
	}
	shuffled := append([]string(nil), expected...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		for _, k := range shuffled {
			mustPut(t, tx, "data", k, "v-"+k)
		}
	})

	view(t, backend, func(tx kv.Txn) {
		c, err := tx.Cursor("data")
		if err != nil {
			t.Fatalf("Failed to open cursor: %v", err)
		}
		defer c.Close()

		if got := collect(c, false); !equalStrings(got, expected) {
			t.Errorf("Expected ascending order %v, got %v", expected, got)
		}

		reversed := make([]string, len(expected))
		for i, k := range expected {
			reversed[len(expected)-1-i] = k
		}
		if got := collect(c, true); !equalStrings(got, reversed) {
			t.Errorf("Expected descending order %v, got %v", reversed, got)
		}

		k, v := c.First()
		if string(v) != "v-"+string(k) {
			t.Errorf("Expected value v-%s, got %s", k, v)
		}
	})

	// cursor over an empty bucket
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("empty")
	})
	view(t, backend, func(tx kv.Txn) {
		c, err := tx.Cursor("empty")
		if err != nil {
			t.Fatalf("Failed to open cursor: %v", err)
		}
		defer c.Close()
		if k, _ := c.First(); k != nil {
			t.Errorf("Expected nil key on empty bucket, got %q", k)
		}
		if k, _ := c.Last(); k != nil {
			t.Errorf("Expected nil key on empty bucket, got %q", k)
		}
	})
}

func testCursorSeek(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		for _, k := range []string{"b", "d", "f"} {
			mustPut(t, tx, "data", k, k)
		}
	})

	view(t, backend, func(tx kv.Txn) {
		c, _ := tx.Cursor("data")
		defer c.Close()

		tests := []struct {
			seek     string
			expected string
		}{
			{"a", "b"},
			{"b", "b"},
			{"c", "d"},
			{"f", "f"},
			{"g", ""},
		}
		for _, tc := range tests {
			k, _ := c.Seek([]byte(tc.seek))
			if string(k) != tc.expected {
				t.Errorf("Seek(%q): expected %q, got %q", tc.seek, tc.expected, k)
			}
		}

		// Next and Prev continue from the seek position
		c.Seek([]byte("c"))
		if k, _ := c.Next(); string(k) != "f" {
			t.Errorf("Expected f after d, got %q", k)
		}
		c.Seek([]byte("c"))
		if k, _ := c.Prev(); string(k) != "b" {
			t.Errorf("Expected b before d, got %q", k)
		}
	})
}

func testBinaryKeys(t *testing.T, backend kv.Backend) {
	keys := [][]byte{
		{0x01},
		{0x01, 0x00},
		{0x01, 0x00, 0xFF},
		{0x01, 0x01},
		{0x10, 0x00, 0x01},
		{0xFF},
	}

	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("bin")
		for i := len(keys) - 1; i >= 0; i-- {
			if err := tx.Put("bin", keys[i], []byte{byte(i)}); err != nil {
				t.Fatalf("Failed to put binary key: %v", err)
			}
		}
	})

	view(t, backend, func(tx kv.Txn) {
		c, _ := tx.Cursor("bin")
		defer c.Close()
		i := 0
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if i >= len(keys) {
				t.Fatalf("Cursor returned more keys than stored")
			}
			if !bytes.Equal(k, keys[i]) || v[0] != byte(i) {
				t.Errorf("Position %d: expected key %x, got %x", i, keys[i], k)
			}
			i++
		}
		if i != len(keys) {
			t.Errorf("Expected %d keys, got %d", len(keys), i)
		}
	})
}

func testTxClosed(t *testing.T, backend kv.Backend) {
	tx, err := backend.Begin(true)
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	_ = tx.CreateBucket("data")
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	if _, err := tx.Get("data", []byte("k")); !errors.Is(err, kv.ErrTxClosed) {
		t.Errorf("Expected ErrTxClosed after commit, got %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, kv.ErrTxClosed) {
		t.Errorf("Expected ErrTxClosed on second commit, got %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Expected rollback after commit to be a no-op, got %v", err)
	}
}

func testInfo(t *testing.T, backend kv.Backend) {
	update(t, backend, func(tx kv.Txn) {
		_ = tx.CreateBucket("data")
		mustPut(t, tx, "data", "key", "value")
	})

	info := backend.Info()
	if info.Impl == "" {
		t.Error("Expected implementation name in info")
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected positive size, got %d", info.SizeBytes)
	}
}
