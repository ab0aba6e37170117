package loop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New("test")
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}

	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if len(got) != 100 {
		t.Fatalf("Expected 100 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("Expected task %d at position %d, got %d", i, i, v)
		}
	}
}

func TestTasksPostedFromLoopRunAfterCurrentTurn(t *testing.T) {
	l := New("test")
	defer l.Close()

	var order []string
	_ = l.Do(context.Background(), func() {
		l.Post(func() { order = append(order, "second") })
		order = append(order, "first")
	})
	_ = l.Do(context.Background(), func() {})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Unexpected order: %v", order)
	}
}

func TestInLoop(t *testing.T) {
	l := New("test")
	defer l.Close()

	if l.InLoop() {
		t.Errorf("Test goroutine should not be the loop goroutine")
	}

	var inside bool
	_ = l.Do(context.Background(), func() { inside = l.InLoop() })
	if !inside {
		t.Errorf("Task should run on the loop goroutine")
	}
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	l := New("test")
	defer l.Close()

	l.Post(func() { panic("boom") })

	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !ran {
		t.Errorf("Loop should keep running after a task panicked")
	}
}

func TestDoRespectsContext(t *testing.T) {
	l := New("test")
	defer l.Close()

	block := make(chan struct{})
	l.Post(func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Do(ctx, func() {}); err == nil {
		t.Errorf("Expected context error while the loop is busy")
	}
	close(block)
}

func TestCloseDrainsQueue(t *testing.T) {
	l := New("test")

	var mu sync.Mutex
	count := 0
	for i := 0; i < 50; i++ {
		l.Post(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	l.Close()

	if count != 50 {
		t.Errorf("Expected all 50 tasks to run before Close returns, got %d", count)
	}
	if l.Post(func() {}) {
		t.Errorf("Post after Close should fail")
	}
	if !l.Closed() {
		t.Errorf("Loop should report closed")
	}
}
