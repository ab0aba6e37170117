package testing

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine/kv"
)

// RunBackendBenchmarks runs all benchmarks for a kv.Backend implementation
func RunBackendBenchmarks(b *testing.B, name string, factory BackendFactory) {
	run := func(bench string, fn func(b *testing.B, backend kv.Backend)) {
		b.Run(name+"/"+bench, func(b *testing.B) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			backend := factory(b)
			defer backend.Close()
			prepare(b, backend)
			b.ResetTimer()
			fn(b, backend)
		})
	}

	run("Put", benchmarkPut)
	run("PutBatch", benchmarkPutBatch)
	run("Get", benchmarkGet)
	run("Scan", benchmarkScan)
}

const benchBucket = "bench"

func prepare(b *testing.B, backend kv.Backend) {
	tx, err := backend.Begin(true)
	if err != nil {
		b.Fatalf("Failed to begin: %v", err)
	}
	_ = tx.CreateBucket(benchBucket)
	for i := 0; i < 1000; i++ {
		_ = tx.Put(benchBucket, []byte(fmt.Sprintf("key-%06d", i)), []byte("value"))
	}
	if err := tx.Commit(); err != nil {
		b.Fatalf("Failed to commit: %v", err)
	}
}

// benchmarkPut measures one committed transaction per write
func benchmarkPut(b *testing.B, backend kv.Backend) {
	value := make([]byte, 128)
	for i := 0; i < b.N; i++ {
		tx, err := backend.Begin(true)
		if err != nil {
			b.Fatal(err)
		}
		_ = tx.Put(benchBucket, []byte(fmt.Sprintf("put-%d", i)), value)
		if err := tx.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

// benchmarkPutBatch measures writes inside a single transaction
func benchmarkPutBatch(b *testing.B, backend kv.Backend) {
	value := make([]byte, 128)
	tx, err := backend.Begin(true)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		_ = tx.Put(benchBucket, []byte(fmt.Sprintf("batch-%d", i)), value)
	}
	if err := tx.Commit(); err != nil {
		b.Fatal(err)
	}
}

func benchmarkGet(b *testing.B, backend kv.Backend) {
	tx, err := backend.Begin(false)
	if err != nil {
		b.Fatal(err)
	}
	defer tx.Rollback()
	for i := 0; i < b.N; i++ {
		_, _ = tx.Get(benchBucket, []byte(fmt.Sprintf("key-%06d", i%1000)))
	}
}

func benchmarkScan(b *testing.B, backend kv.Backend) {
	for i := 0; i < b.N; i++ {
		tx, err := backend.Begin(false)
		if err != nil {
			b.Fatal(err)
		}
		c, _ := tx.Cursor(benchBucket)
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
		}
		c.Close()
		_ = tx.Rollback()
	}
}
