package testing

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// Timeout bounds every wait on the engine loop
var Timeout = 5 * time.Second

// FactoryFactory creates a new factory with no databases
type FactoryFactory func(tb testing.TB) engine.Factory

// UpgradeFunc runs inside the upgradeneeded handler
type UpgradeFunc func(t testing.TB, db engine.Database, ev *engine.Event)

// asEngineError extracts the engine error of err
func asEngineError(err error) *engine.Error {
	var eerr *engine.Error
	if errors.As(err, &eerr) {
		return eerr
	}
	return engine.NewError(engine.UnknownError, "%v", err)
}

// OnLoop runs fn on the engine loop and waits for it to return
func OnLoop(tb testing.TB, f engine.Factory, fn func()) {
	tb.Helper()
	done := make(chan struct{})
	if !f.Schedule(func() {
		defer close(done)
		fn()
	}) {
		tb.Fatal("Failed to schedule task: factory closed")
	}
	select {
	case <-done:
	case <-time.After(Timeout):
		tb.Fatal("Timed out waiting for the engine loop")
	}
}

// Open opens a database and waits for success or error
func Open(tb testing.TB, f engine.Factory, name string, version uint64, upgrade UpgradeFunc) (engine.Database, *engine.Error) {
	tb.Helper()

	type result struct {
		db  engine.Database
		err *engine.Error
	}
	ch := make(chan result, 1)

	f.Schedule(func() {
		req, err := f.Open(name, version)
		if err != nil {
			ch <- result{err: asEngineError(err)}
			return
		}
		req.OnUpgradeNeeded(func(ev *engine.Event) {
			if upgrade != nil {
				upgrade(tb, req.Result().(engine.Database), ev)
			}
		})
		req.OnSuccess(func(*engine.Event) {
			ch <- result{db: req.Result().(engine.Database)}
		})
		req.OnError(func(ev *engine.Event) {
			ch <- result{err: ev.Err}
		})
	})

	select {
	case r := <-ch:
		return r.db, r.err
	case <-time.After(Timeout):
		tb.Fatalf("Timed out opening %s", name)
		return nil, nil
	}
}

// MustOpen is Open that fails the test on error
func MustOpen(tb testing.TB, f engine.Factory, name string, version uint64, upgrade UpgradeFunc) engine.Database {
	tb.Helper()
	db, err := Open(tb, f, name, version, upgrade)
	if err != nil {
		tb.Fatalf("Failed to open %s at version %d: %v", name, version, err)
	}
	return db
}

// TxResult is the outcome of a transaction run with RunTx
type TxResult struct {
	Completed bool
	AbortErr  *engine.Error // set when the transaction aborted
	Errors    []*engine.Error
}

// RunTx creates a transaction on the loop, calls fn in the creating turn and
// waits for complete or abort.
func RunTx(tb testing.TB, f engine.Factory, db engine.Database, stores []string, mode engine.Mode, fn func(tx engine.Transaction)) TxResult {
	tb.Helper()

	ch := make(chan TxResult, 1)
	var res TxResult

	f.Schedule(func() {
		tx, err := db.Transaction(stores, mode)
		if err != nil {
			ch <- TxResult{AbortErr: asEngineError(err)}
			return
		}
		tx.OnError(func(ev *engine.Event) {
			res.Errors = append(res.Errors, ev.Err)
		})
		tx.OnComplete(func(*engine.Event) {
			res.Completed = true
			ch <- res
		})
		tx.OnAbort(func(ev *engine.Event) {
			res.AbortErr = ev.Err
			ch <- res
		})
		fn(tx)
	})

	select {
	case r := <-ch:
		return r
	case <-time.After(Timeout):
		tb.Fatal("Timed out waiting for transaction")
		return TxResult{}
	}
}

// Store returns the object store of tx. These helpers run on the loop
// goroutine, so they report failures with Errorf instead of stopping the test.
func Store(tb testing.TB, tx engine.Transaction, name string) engine.ObjectStore {
	tb.Helper()
	s, err := tx.ObjectStore(name)
	if err != nil {
		tb.Errorf("Failed to get object store %s: %v", name, err)
	}
	return s
}

// Must reports an error if a request could not be issued. It is curried so
// the request pair can be passed straight through: Must(t)(s.Get(k)).
func Must(tb testing.TB) func(engine.Request, error) engine.Request {
	return func(req engine.Request, err error) engine.Request {
		tb.Helper()
		if err != nil {
			tb.Errorf("Failed to issue request: %v", err)
		}
		return req
	}
}

// Collected records key, primary key and value of every cursor position
type Collected struct {
	Keys        []any
	PrimaryKeys []any
	Values      []any
}

// CollectCursor installs handlers that walk the cursor until it is exhausted
func CollectCursor(req engine.Request, out *Collected) {
	req.OnSuccess(func(*engine.Event) {
		c, _ := req.Result().(engine.Cursor)
		if c == nil {
			return
		}
		out.Keys = append(out.Keys, c.Key())
		out.PrimaryKeys = append(out.PrimaryKeys, c.PrimaryKey())
		out.Values = append(out.Values, c.Value())
		_ = c.Continue()
	})
}
