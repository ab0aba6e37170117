// Package loop implements the single-threaded cooperative scheduler every
// engine callback runs on. A Loop owns exactly one goroutine (locked to its OS
// thread, which LMDB write transactions require) and executes posted tasks one
// after another. A task is a "turn": nothing else runs on the loop until it
// returns.
package loop

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/fKV/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/petermattis/goid"
)

var log = logger.GetLogger("loop")

// Task is a unit of work executed on the loop goroutine.
type Task func()

// Loop runs tasks on a single goroutine in the order they were posted.
type Loop struct {
	name    string
	queue   *util.LockFreeMPSC[Task]
	done    chan struct{}
	running atomic.Bool
	gid     atomic.Uint64
}

// New creates and starts a loop. The name is only used for logging.
func New(name string) *Loop {
	l := &Loop{
		name:  name,
		queue: util.NewLockFreeMPSC[Task](),
		done:  make(chan struct{}),
	}
	l.running.Store(true)

	started := make(chan struct{})
	go l.run(started)
	<-started

	return l
}

// run is the loop goroutine. It drains the queue and parks when it is empty.
func (l *Loop) run(started chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	l.gid.Store(uint64(goid.Get()))
	close(started)

	for {
		for {
			task, ok := l.queue.Pop()
			if !ok {
				break
			}
			l.exec(*task)
		}
		if !l.queue.Wait() {
			return
		}
	}
}

// exec runs one task and keeps the loop alive if it panics.
func (l *Loop) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("loop %s: task panicked: %v", l.name, r)
		}
	}()
	task()
}

// Post schedules a task. It returns false if the loop is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Loop) Post(task Task) bool {
	if task == nil {
		return false
	}
	return l.queue.Push(&task)
}

// Do posts a task and blocks until it has run or the context is done.
// Calling Do from the loop goroutine itself would deadlock, so it runs the
// task inline in that case.
func (l *Loop) Do(ctx context.Context, task Task) error {
	if l.InLoop() {
		task()
		return nil
	}

	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		task()
	}) {
		return fmt.Errorf("loop %s is closed", l.name)
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InLoop reports whether the caller runs on the loop goroutine.
func (l *Loop) InLoop() bool {
	return l.gid.Load() == uint64(goid.Get())
}

// Pending returns the approximate number of queued tasks.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Close stops accepting tasks, runs everything already queued and waits for
// the loop goroutine to exit.
func (l *Loop) Close() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.queue.Close()
	if !l.InLoop() {
		<-l.done
	}
}

// Closed reports whether Close was called.
func (l *Loop) Closed() bool {
	return !l.running.Load()
}
