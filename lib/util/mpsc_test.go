package util

import (
	"sync"
	"testing"
	"time"
)

// TestBasicOperations tests basic push and pop functionality
func TestBasicOperations(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	if q.Len() != 10 {
		t.Errorf("Expected length 10, got %d", q.Len())
	}

	for i := 0; i < 10; i++ {
		val, ok := q.Pop()
		if !ok {
			t.Fatalf("Expected item %d, queue was empty", i)
		}
		if *val != i {
			t.Errorf("Expected %d, got %d", i, *val)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Errorf("Queue should be empty")
	}
}

// TestPushNil verifies that nil values are rejected
func TestPushNil(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	if q.Push(nil) {
		t.Errorf("Push(nil) should return false")
	}
}

// TestClose verifies that a closed queue rejects pushes but can still be drained
func TestClose(t *testing.T) {
	q := NewLockFreeMPSC[int]()

	v := 42
	q.Push(&v)
	q.Close()

	if !q.IsClosed() {
		t.Errorf("Queue should report closed")
	}
	if q.Push(&v) {
		t.Errorf("Push after Close should return false")
	}
	if !q.Wait() {
		t.Fatalf("Wait should return true while values are queued")
	}
	if val, ok := q.Pop(); !ok || *val != 42 {
		t.Errorf("Expected queued value 42 after close")
	}
	if q.Wait() {
		t.Errorf("Wait should return false on a closed and drained queue")
	}
}

// TestWaitWakesConsumer verifies that a parked consumer is woken by a push
func TestWaitWakesConsumer(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	got := make(chan int, 1)
	go func() {
		if q.Wait() {
			v, _ := q.Pop()
			got <- *v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	v := 7
	q.Push(&v)

	select {
	case val := <-got:
		if val != 7 {
			t.Errorf("Expected 7, got %d", val)
		}
	case <-time.After(time.Second):
		t.Fatalf("Consumer was not woken up")
	}
}

// TestConcurrentProducers verifies the queue works correctly with multiple producers
func TestConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	const numProducers = 10
	const itemsPerProducer = 1000
	total := numProducers * itemsPerProducer

	var wg sync.WaitGroup
	for p := 0; p < numProducers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				v := p*itemsPerProducer + i
				q.Push(&v)
			}
		}(p)
	}

	// per-producer order must be preserved
	lastSeen := make([]int, numProducers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}

	received := 0
	deadline := time.After(5 * time.Second)
	for received < total {
		select {
		case <-deadline:
			t.Fatalf("Timeout, received %d of %d items", received, total)
		default:
		}
		v, ok := q.Pop()
		if !ok {
			q.Wait()
			continue
		}
		producer, seq := *v/itemsPerProducer, *v%itemsPerProducer
		if seq <= lastSeen[producer] {
			t.Fatalf("Producer %d out of order: %d after %d", producer, seq, lastSeen[producer])
		}
		lastSeen[producer] = seq
		received++
	}
	wg.Wait()
}
