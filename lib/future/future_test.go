package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	f := New[int]()
	if f.Settled() {
		t.Fatal("Expected new future to be unsettled")
	}
	if _, _, ok := f.Result(); ok {
		t.Error("Expected no result before settlement")
	}

	if !f.Resolve(42) {
		t.Error("Expected first Resolve to settle")
	}
	if f.Resolve(1) || f.Reject(errors.New("late")) {
		t.Error("Expected later calls to be ignored")
	}

	v, err := f.Await(context.Background())
	if err != nil || v != 42 {
		t.Errorf("Expected 42, got %d (%v)", v, err)
	}
}

func TestReject(t *testing.T) {
	boom := errors.New("boom")
	f := Rejected[string](boom)

	if f.Resolve("x") {
		t.Error("Expected Resolve after Reject to be ignored")
	}
	v, err, ok := f.Result()
	if !ok || !errors.Is(err, boom) || v != "" {
		t.Errorf("Expected rejection with boom, got %q %v %v", v, err, ok)
	}
}

func TestAwaitContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if f.Settled() {
		t.Error("Expected a timed out wait not to settle the future")
	}

	// the future can still settle afterwards
	f.Resolve(7)
	select {
	case <-f.Done():
	default:
		t.Error("Expected Done to be closed")
	}
}

func TestConcurrentSettle(t *testing.T) {
	for round := 0; round < 100; round++ {
		f := New[int]()
		var wins atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var ok bool
				if i%2 == 0 {
					ok = f.Resolve(i)
				} else {
					ok = f.Reject(errors.New("odd"))
				}
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Fatalf("Expected exactly one settlement, got %d", wins.Load())
		}
	}
}
